package beans_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
)

type NodeA struct {
	B *NodeB
}

type NodeB struct {
	A *NodeA
}

type TaggedA struct {
	B *TaggedB `di:""`
}

type TaggedB struct {
	A *TaggedA `di:""`
}

type CtorA struct{ B *CtorB }

type CtorB struct{ A *CtorA }

func NewCtorA(b *CtorB) *CtorA { return &CtorA{B: b} }

func NewCtorB(a *CtorA) *CtorB { return &CtorB{A: a} }

func TestPropertyCycleResolvedByEarlyReference(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[NodeA](f, "a", beans.WithProperty("b", beans.Ref("b"))))
	require.NoError(t, beans.Register[NodeB](f, "b", beans.WithProperty("a", beans.Ref("a"))))

	a, err := beans.Get[*NodeA](f, "a")
	require.NoError(t, err)
	require.NotNil(t, a.B)
	assert.Same(t, a, a.B.A)

	b, err := beans.Get[*NodeB](f, "b")
	require.NoError(t, err)
	assert.Same(t, b, a.B)
}

func TestTaggedFieldCycle(t *testing.T) {
	f := beans.NewFactory()
	f.AddBeanPostProcessor(beans.NewAutowiredTagPostProcessor(f))
	require.NoError(t, beans.Register[TaggedA](f, "a"))
	require.NoError(t, beans.Register[TaggedB](f, "b"))

	b, err := beans.Get[*TaggedB](f, "b")
	require.NoError(t, err)
	require.NotNil(t, b.A)
	assert.Same(t, b, b.A.B)
}

func TestCircularReferencesDisabled(t *testing.T) {
	f := beans.NewFactory(beans.WithAllowCircularReferences(false))
	require.NoError(t, beans.Register[NodeA](f, "a", beans.WithProperty("b", beans.Ref("b"))))
	require.NoError(t, beans.Register[NodeB](f, "b", beans.WithProperty("a", beans.Ref("a"))))

	_, err := f.GetBean("a")
	var cic *beans.CurrentlyInCreationError
	require.ErrorAs(t, err, &cic)
	assert.Equal(t, "a", cic.Bean)
	assert.False(t, f.ContainsSingleton("a"))
	assert.False(t, f.ContainsSingleton("b"))
}

func TestConstructorCycle(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "ca", NewCtorA))
	require.NoError(t, beans.Provide(f, "cb", NewCtorB))

	_, err := f.GetBean("ca")
	var cic *beans.CurrentlyInCreationError
	require.ErrorAs(t, err, &cic)
	assert.Equal(t, "ca", cic.Bean)
	assert.Equal(t, []string{"ca", "cb"}, beans.CreationChain(err))

	// 失败后不应残留任何单例
	assert.Empty(t, f.SingletonNames())
}

func TestPrototypeSelfReference(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[NodeA](f, "p",
		beans.WithPrototype(),
		beans.WithProperty("b", beans.Ref("p"))))

	_, err := f.GetBean("p")
	var cic *beans.CurrentlyInCreationError
	require.ErrorAs(t, err, &cic)
}

func TestDependsOnCycle(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[Repo](f, "a", beans.WithDependsOn("b")))
	require.NoError(t, beans.Register[Repo](f, "b", beans.WithDependsOn("a")))

	_, err := f.GetBean("a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular depends-on")
}

func TestDependsOnOrder(t *testing.T) {
	var order []string
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "first", func() *Repo {
		order = append(order, "first")
		return &Repo{}
	}))
	require.NoError(t, beans.Provide(f, "second", func() *Other {
		order = append(order, "second")
		return &Other{}
	}, beans.WithDependsOn("first")))

	_, err := f.GetBean("second")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Contains(t, f.DependentBeans("first"), "second")
}

func TestMissingDependsOn(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[Repo](f, "a", beans.WithDependsOn("ghost")))

	_, err := f.GetBean("a")
	require.Error(t, err)
	assert.True(t, beans.IsNotFound(err))
}
