package beans_test

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
)

type Conn struct {
	DSN string
}

type connFactory struct {
	DSN   string
	calls int
}

func (f *connFactory) Object() (any, error) {
	f.calls++
	return &Conn{DSN: f.DSN}, nil
}

func (f *connFactory) ObjectType() reflect.Type { return beans.TypeOf[*Conn]() }

func (f *connFactory) IsSingleton() bool { return true }

type protoConnFactory struct {
	connFactory
}

func (f *protoConnFactory) IsSingleton() bool { return false }

type nilFactory struct{}

func (nilFactory) Object() (any, error)     { return nil, nil }
func (nilFactory) ObjectType() reflect.Type { return nil }
func (nilFactory) IsSingleton() bool        { return true }

func TestFactoryBeanProduct(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[connFactory](f, "conn", beans.WithProperty("dsn", "sqlite://memory")))

	conn, err := beans.Get[*Conn](f, "conn")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://memory", conn.DSN)

	again, err := f.GetBean("conn")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	factory, err := beans.Get[*connFactory](f, "&conn")
	require.NoError(t, err)
	assert.Equal(t, 1, factory.calls)
	assert.True(t, f.IsFactoryBean("conn"))
}

func TestFactoryBeanTypeWithoutInstantiation(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[connFactory](f, "conn"))

	typ, err := f.Type("conn")
	require.NoError(t, err)
	assert.Equal(t, beans.TypeOf[*Conn](), typ)

	typ, err = f.Type("&conn")
	require.NoError(t, err)
	assert.Equal(t, beans.TypeOf[*connFactory](), typ)

	ok, err := f.IsTypeMatch("conn", beans.TypeOf[*Conn]())
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"conn"}, f.BeanNamesForType(beans.TypeOf[*Conn](), true, false))
	assert.Equal(t, []string{"&conn"}, f.BeanNamesForType(beans.TypeOf[*connFactory](), true, false))
	assert.False(t, f.ContainsSingleton("conn"))
}

func TestFactoryBeanPrototypeProduct(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[protoConnFactory](f, "conn"))

	a, err := f.GetBean("conn")
	require.NoError(t, err)
	b, err := f.GetBean("conn")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	proto, err := f.IsPrototype("conn")
	require.NoError(t, err)
	assert.True(t, proto)
	single, err := f.IsSingleton("&conn")
	require.NoError(t, err)
	assert.True(t, single)
}

func TestFactoryBeanInjectedByProductType(t *testing.T) {
	type Client struct {
		Conn *Conn
	}
	f := beans.NewFactory()
	require.NoError(t, beans.Register[connFactory](f, "conn"))
	require.NoError(t, beans.Provide(f, "client", func(c *Conn) *Client { return &Client{Conn: c} }))

	client, err := beans.Get[*Client](f, "client")
	require.NoError(t, err)
	conn, err := f.GetBean("conn")
	require.NoError(t, err)
	assert.Same(t, conn, client.Conn)
}

func TestFactoryBeanReturningNil(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[nilFactory](f, "broken"))

	_, err := f.GetBean("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned nil")
}

func TestDereferenceNonFactory(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[Repo](f, "repo"))

	_, err := f.GetBean("&repo")
	var nf *beans.NotAFactoryError
	require.ErrorAs(t, err, &nf)
	assert.False(t, f.ContainsBean("&repo"))
}

type Holder struct {
	Link *Link
}

type Link struct {
	Holder *Holder
}

// linkFactory 在 Object 中再次查找依赖自身产物的 bean
type linkFactory struct {
	factory *beans.Factory
	calls   atomic.Int32
}

func (f *linkFactory) SetBeanFactory(bf *beans.Factory) { f.factory = bf }

func (f *linkFactory) Object() (any, error) {
	f.calls.Add(1)
	h, err := f.factory.GetBean("holder")
	if err != nil {
		return nil, err
	}
	return &Link{Holder: h.(*Holder)}, nil
}

func (f *linkFactory) ObjectType() reflect.Type { return beans.TypeOf[*Link]() }

func (f *linkFactory) IsSingleton() bool { return true }

func TestFactoryBeanObjectReentersOwnProduct(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[linkFactory](f, "link"))
	require.NoError(t, beans.Register[Holder](f, "holder", beans.WithProperty("link", beans.Ref("link"))))

	type result struct {
		link any
		err  error
	}
	done := make(chan result, 1)
	go func() {
		link, err := f.GetBean("link")
		done <- result{link, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("GetBean did not return while the FactoryBean looked up a bean depending on its own product")
	}
	require.NoError(t, res.err)

	link := res.link.(*Link)
	holder := beans.MustGet[*Holder](f, "holder")
	assert.Same(t, holder, link.Holder)
	assert.Same(t, link, holder.Link)

	again, err := f.GetBean("link")
	require.NoError(t, err)
	assert.Same(t, link, again)
}

type slowFactory struct {
	calls atomic.Int32
}

func (f *slowFactory) Object() (any, error) {
	f.calls.Add(1)
	time.Sleep(50 * time.Millisecond)
	return &Conn{DSN: "slow"}, nil
}

func (f *slowFactory) ObjectType() reflect.Type { return beans.TypeOf[*Conn]() }

func (f *slowFactory) IsSingleton() bool { return true }

func TestFactoryBeanProductCreatedOnceAcrossGoroutines(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[slowFactory](f, "slow"))
	factory, err := beans.Get[*slowFactory](f, "&slow")
	require.NoError(t, err)

	const workers = 8
	products := make([]any, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := f.GetBean("slow")
			assert.NoError(t, err)
			products[i] = obj
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), factory.calls.Load())
	for _, p := range products {
		assert.Same(t, products[0], p)
	}
}
