package beans

import (
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/logging"
)

// objectFromFactoryBean 取得 FactoryBean 的产物。
// 单例产物按名称缓存，并且每个名称只创建、后处理一次。
func (f *Factory) objectFromFactoryBean(c *chain, fb FactoryBean, beanName string, postProcess bool) (any, error) {
	if !fb.IsSingleton() || !f.singletons.contains(beanName) {
		obj, err := f.callFactoryObject(c, fb, beanName)
		if err != nil {
			return nil, err
		}
		if postProcess {
			if obj, err = f.applyAfterInitialization(obj, beanName); err != nil {
				return nil, f.creationError(c, beanName, "post-processing of FactoryBean's object failed", err)
			}
		}
		return obj, nil
	}

	for {
		if obj, ok := f.products.Load(beanName); ok {
			return obj, nil
		}
		owned, reentrant := f.singletons.beginProduct(beanName, c)
		if owned == nil && !reentrant {
			continue
		}
		obj, err := f.singletonProduct(c, fb, beanName, postProcess)
		if owned != nil {
			f.singletons.endProduct(beanName, owned)
		}
		return obj, err
	}
}

// singletonProduct 调用 Object 并缓存单例产物。
// Object 在同一调用栈上重入时，先缓存的产物胜出。
func (f *Factory) singletonProduct(c *chain, fb FactoryBean, beanName string, postProcess bool) (any, error) {
	obj, err := f.callFactoryObject(c, fb, beanName)
	if err != nil {
		return nil, err
	}
	if cached, ok := f.products.Load(beanName); ok {
		return cached, nil
	}
	if postProcess {
		if f.singletons.isInCreation(beanName) {
			// 工厂尚未完成创建时返回未后处理的产物，也不缓存
			return obj, nil
		}
		if obj, err = f.applyAfterInitialization(obj, beanName); err != nil {
			return nil, f.creationError(c, beanName, "post-processing of FactoryBean's singleton object failed", err)
		}
	}
	if f.singletons.contains(beanName) {
		if cached, loaded := f.products.LoadOrStore(beanName, obj); loaded {
			return cached, nil
		}
	}
	return obj, nil
}

func (f *Factory) callFactoryObject(c *chain, fb FactoryBean, beanName string) (obj any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = f.creationError(c, beanName, "FactoryBean threw exception on object creation", fmt.Errorf("panic: %v", r))
		}
	}()
	obj, err = fb.Object()
	if err != nil {
		return nil, f.creationError(c, beanName, "FactoryBean threw exception on object creation", err)
	}
	if obj == nil || isNilValue(reflect.ValueOf(obj)) {
		if f.singletons.isInCreation(beanName) {
			return nil, &FactoryBeanNotInitializedError{Name: beanName}
		}
		return nil, f.creationError(c, beanName, "FactoryBean returned nil from Object", nil)
	}
	f.logger.Trace("Obtained object from FactoryBean", logging.Field{Key: "bean", Value: beanName})
	return obj, nil
}
