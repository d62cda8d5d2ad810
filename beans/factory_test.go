package beans_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
)

type Repo struct {
	Name string
}

func NewRepo() *Repo {
	return &Repo{Name: "default"}
}

type Service struct {
	Repo *Repo
}

func NewService(r *Repo) *Service {
	return &Service{Repo: r}
}

type Other struct{}

func TestSingletonAndPrototype(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[Repo](f, "single"))
	require.NoError(t, beans.Register[Repo](f, "proto", beans.WithPrototype()))

	a, err := f.GetBean("single")
	require.NoError(t, err)
	b, err := f.GetBean("single")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.IsType(t, &Repo{}, a)

	p1, err := f.GetBean("proto")
	require.NoError(t, err)
	p2, err := f.GetBean("proto")
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)

	single, err := f.IsSingleton("single")
	require.NoError(t, err)
	assert.True(t, single)
	proto, err := f.IsPrototype("proto")
	require.NoError(t, err)
	assert.True(t, proto)
}

func TestGetBeanNotFound(t *testing.T) {
	f := beans.NewFactory()
	_, err := f.GetBean("missing")
	require.Error(t, err)
	assert.True(t, beans.IsNotFound(err))
}

func TestConstructorAutowiring(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "repo", NewRepo))
	require.NoError(t, beans.Provide(f, "service", NewService))

	svc, err := beans.Get[*Service](f, "service")
	require.NoError(t, err)
	repo, err := beans.Get[*Repo](f, "repo")
	require.NoError(t, err)
	assert.Same(t, repo, svc.Repo)
	assert.Contains(t, f.DependentBeans("repo"), "service")
}

func TestNoUniqueBean(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "r1", NewRepo))
	require.NoError(t, beans.Provide(f, "r2", NewRepo))
	require.NoError(t, beans.Provide(f, "service", NewService))

	_, err := f.GetBean("service")
	require.Error(t, err)
	var nu *beans.NoUniqueBeanError
	require.ErrorAs(t, err, &nu)
	assert.ElementsMatch(t, []string{"r1", "r2"}, nu.Candidates)

	_, err = beans.GetByType[*Repo](f)
	require.ErrorAs(t, err, &nu)
}

func TestPrimaryWins(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "r1", NewRepo))
	require.NoError(t, beans.Provide(f, "r2", NewRepo, beans.WithPrimary()))
	require.NoError(t, beans.Provide(f, "service", NewService))

	svc, err := beans.Get[*Service](f, "service")
	require.NoError(t, err)
	r2, err := f.GetBean("r2")
	require.NoError(t, err)
	assert.Same(t, r2, svc.Repo)
}

func TestMultiplePrimaryIsAmbiguous(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "r1", NewRepo, beans.WithPrimary()))
	require.NoError(t, beans.Provide(f, "r2", NewRepo, beans.WithPrimary()))

	_, err := beans.GetByType[*Repo](f)
	var nu *beans.NoUniqueBeanError
	require.ErrorAs(t, err, &nu)
	assert.Contains(t, err.Error(), "more than one 'primary'")
}

func TestPriorityComparator(t *testing.T) {
	f := beans.NewFactory(beans.WithPriorityComparator())
	require.NoError(t, beans.Provide(f, "low", NewRepo, beans.WithPriority(10)))
	require.NoError(t, beans.Provide(f, "high", NewRepo, beans.WithPriority(1)))

	repo, err := beans.GetByType[*Repo](f)
	require.NoError(t, err)
	high, err := f.GetBean("high")
	require.NoError(t, err)
	assert.Same(t, high, repo)
}

func TestPriorityTie(t *testing.T) {
	f := beans.NewFactory(beans.WithPriorityComparator())
	require.NoError(t, beans.Provide(f, "a", NewRepo, beans.WithPriority(1)))
	require.NoError(t, beans.Provide(f, "b", NewRepo, beans.WithPriority(1)))
	require.NoError(t, beans.Provide(f, "c", NewRepo, beans.WithPriority(5)))

	_, err := beans.GetByType[*Repo](f)
	var nu *beans.NoUniqueBeanError
	require.ErrorAs(t, err, &nu)
	assert.Contains(t, err.Error(), "same priority")
}

func TestFallbackByParameterName(t *testing.T) {
	type Holder struct {
		Main *Repo
	}
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "main", NewRepo))
	require.NoError(t, beans.Provide(f, "backup", NewRepo))
	require.NoError(t, beans.Register[Holder](f, "holder", beans.WithAutowire(beans.AutowireByType)))

	h, err := beans.Get[*Holder](f, "holder")
	require.NoError(t, err)
	main, err := f.GetBean("main")
	require.NoError(t, err)
	assert.Same(t, main, h.Main)
}

func TestOverriding(t *testing.T) {
	f := beans.NewFactory(beans.WithAllowOverriding(false))
	require.NoError(t, beans.Register[Repo](f, "x"))
	err := beans.Register[Other](f, "x")
	var oe *beans.DefinitionOverrideError
	require.ErrorAs(t, err, &oe)

	f = beans.NewFactory()
	require.NoError(t, beans.Register[Repo](f, "x"))
	first, err := f.GetBean("x")
	require.NoError(t, err)
	require.NoError(t, beans.Register[Other](f, "x"))
	second, err := f.GetBean("x")
	require.NoError(t, err)
	assert.IsType(t, &Repo{}, first)
	assert.IsType(t, &Other{}, second)
}

func TestAliases(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[Repo](f, "repo"))
	require.NoError(t, f.RegisterAlias("repo", "store"))
	require.NoError(t, f.RegisterAlias("store", "db"))

	a, err := f.GetBean("repo")
	require.NoError(t, err)
	b, err := f.GetBean("db")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"store", "db"}, f.Aliases("repo"))
	assert.ElementsMatch(t, []string{"repo", "store"}, f.Aliases("db"))

	err = f.RegisterAlias("db", "store")
	var ae *beans.AliasError
	require.ErrorAs(t, err, &ae)

	err = f.RegisterAlias("repo", "repo")
	require.ErrorAs(t, err, &ae)

	require.NoError(t, beans.Register[Other](f, "other"))
	err = f.RegisterAlias("repo", "other")
	require.ErrorAs(t, err, &ae)
}

func TestPropertiesAndConversion(t *testing.T) {
	type Conn struct {
		Host    string
		Port    int
		Timeout time.Duration
		Tags    []string
	}
	f := beans.NewFactory()
	require.NoError(t, beans.Register[Conn](f, "conn",
		beans.WithProperty("host", "localhost"),
		beans.WithProperty("port", "5432"),
		beans.WithProperty("timeout", "3s"),
		beans.WithProperty("tags", "a, b")))

	c, err := beans.Get[*Conn](f, "conn")
	require.NoError(t, err)
	assert.Equal(t, "localhost", c.Host)
	assert.Equal(t, 5432, c.Port)
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.Equal(t, []string{"a", "b"}, c.Tags)
}

func TestParentChildMerge(t *testing.T) {
	type Conn struct {
		Host string
		Port int
	}
	f := beans.NewFactory()
	require.NoError(t, f.RegisterBeanDefinition("base", beans.NewBeanDefinition(beans.TypeOf[Conn](),
		beans.WithAbstract(),
		beans.WithProperty("host", "localhost"),
		beans.WithProperty("port", 5432))))
	require.NoError(t, f.RegisterBeanDefinition("child", beans.NewChildDefinition("base",
		beans.WithProperty("port", 6000))))

	c, err := beans.Get[*Conn](f, "child")
	require.NoError(t, err)
	assert.Equal(t, "localhost", c.Host)
	assert.Equal(t, 6000, c.Port)

	_, err = f.GetBean("base")
	var abs *beans.BeanIsAbstractError
	require.ErrorAs(t, err, &abs)

	merged, err := f.MergedBeanDefinition("child")
	require.NoError(t, err)
	assert.False(t, merged.Abstract)
	assert.Empty(t, merged.ParentName)
}

func TestCircularParent(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, f.RegisterBeanDefinition("a", beans.NewChildDefinition("b")))
	require.NoError(t, f.RegisterBeanDefinition("b", beans.NewChildDefinition("a")))

	_, err := f.GetBean("a")
	var se *beans.DefinitionStoreError
	require.ErrorAs(t, err, &se)
}

func TestInnerBeansAndCollections(t *testing.T) {
	type Item struct {
		Name string
	}
	type Holder struct {
		Items  []*Item
		ByName map[string]*Item
		Inner  *Item
	}
	f := beans.NewFactory()
	require.NoError(t, beans.Register[Item](f, "first", beans.WithProperty("name", "first")))
	require.NoError(t, beans.Register[Holder](f, "holder",
		beans.WithProperty("items", beans.List{Elements: []any{
			beans.Ref("first"),
			beans.NewBeanDefinition(beans.TypeOf[Item](), beans.WithProperty("name", "anonymous")),
		}}),
		beans.WithProperty("byName", beans.Map{Entries: map[string]any{"f": beans.Ref("first")}}),
		beans.WithProperty("inner", beans.NewBeanDefinition(beans.TypeOf[Item](), beans.WithProperty("name", "inner")))))

	h, err := beans.Get[*Holder](f, "holder")
	require.NoError(t, err)
	require.Len(t, h.Items, 2)
	assert.Equal(t, "first", h.Items[0].Name)
	assert.Equal(t, "anonymous", h.Items[1].Name)
	assert.Equal(t, "first", h.ByName["f"].Name)
	assert.Equal(t, "inner", h.Inner.Name)

	first, err := f.GetBean("first")
	require.NoError(t, err)
	assert.Same(t, first, h.Items[0])
}

func TestAutowireByName(t *testing.T) {
	type Consumer struct {
		Repo  *Repo
		Other *Other
	}
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "repo", NewRepo))
	require.NoError(t, beans.Register[Consumer](f, "consumer", beans.WithAutowire(beans.AutowireByName)))

	c, err := beans.Get[*Consumer](f, "consumer")
	require.NoError(t, err)
	assert.NotNil(t, c.Repo)
	assert.Nil(t, c.Other)

	require.NoError(t, beans.Register[Consumer](f, "strict",
		beans.WithAutowire(beans.AutowireByName), beans.WithDependencyCheck()))
	_, err = f.GetBean("strict")
	var ud *beans.UnsatisfiedDependencyError
	require.ErrorAs(t, err, &ud)
}

func TestAutowireByType(t *testing.T) {
	type Consumer struct {
		Store *Repo
		All   []*Repo
	}
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "repo", NewRepo))
	require.NoError(t, beans.Register[Consumer](f, "consumer", beans.WithAutowire(beans.AutowireByType)))

	c, err := beans.Get[*Consumer](f, "consumer")
	require.NoError(t, err)
	repo, err := f.GetBean("repo")
	require.NoError(t, err)
	assert.Same(t, repo, c.Store)
	assert.Equal(t, []*Repo{repo.(*Repo)}, c.All)
}

func TestConstructorSelection(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "repo", NewRepo))
	require.NoError(t, f.RegisterBeanDefinition("service", beans.NewBeanDefinition(nil,
		beans.WithConstructor(
			func() *Service { return &Service{} },
			func(r *Repo) *Service { return &Service{Repo: r} },
		),
		beans.WithAutowire(beans.AutowireConstructor))))

	svc, err := beans.Get[*Service](f, "service")
	require.NoError(t, err)
	assert.NotNil(t, svc.Repo)
}

func TestConstructorAmbiguity(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "repo", NewRepo))
	require.NoError(t, beans.Register[Other](f, "other"))
	require.NoError(t, f.RegisterBeanDefinition("service", beans.NewBeanDefinition(nil,
		beans.WithConstructor(
			func(r *Repo) *Service { return &Service{Repo: r} },
			func(o *Other) *Service { return &Service{} },
		),
		beans.WithAutowire(beans.AutowireConstructor))))

	_, err := f.GetBean("service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous constructor")
}

func TestExplicitArguments(t *testing.T) {
	type Item struct {
		Name  string
		Count int
	}
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "item", func(name string, count int) *Item {
		return &Item{Name: name, Count: count}
	}, beans.WithPrototype(), beans.WithArg(0, "default"), beans.WithArg(1, "1")))

	item, err := beans.Get[*Item](f, "item")
	require.NoError(t, err)
	assert.Equal(t, &Item{Name: "default", Count: 1}, item)

	v, err := f.GetBeanWithArgs("item", "custom", 7)
	require.NoError(t, err)
	assert.Equal(t, &Item{Name: "custom", Count: 7}, v)
}

func TestFactoryMethod(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Register[repoFactory](f, "factory"))
	require.NoError(t, f.RegisterBeanDefinition("repo", beans.NewBeanDefinition(nil,
		beans.WithFactoryMethod("factory", "NewRepo"))))

	typ, err := f.Type("repo")
	require.NoError(t, err)
	assert.Equal(t, beans.TypeOf[*Repo](), typ)

	repo, err := beans.Get[*Repo](f, "repo")
	require.NoError(t, err)
	assert.Equal(t, "from-factory", repo.Name)
}

type repoFactory struct{}

func (repoFactory) NewRepo() *Repo { return &Repo{Name: "from-factory"} }

func TestConstructorError(t *testing.T) {
	f := beans.NewFactory()
	boom := errors.New("boom")
	require.NoError(t, beans.Provide(f, "bad", func() (*Repo, error) { return nil, boom }))

	_, err := f.GetBean("bad")
	require.ErrorIs(t, err, boom)
	var ce *beans.CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "bad", ce.Bean)
	assert.False(t, f.ContainsSingleton("bad"))
}

func TestConcurrentSingletonCreation(t *testing.T) {
	var calls atomic.Int32
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "slow", func() *Repo {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &Repo{}
	}))

	const n = 32
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.GetBean("slow")
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestBeanNamesForType(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "r1", NewRepo))
	require.NoError(t, beans.Provide(f, "r2", NewRepo, beans.WithPrototype()))
	require.NoError(t, beans.Register[Other](f, "other"))
	require.NoError(t, f.RegisterSingleton("manual", &Repo{Name: "manual"}))

	assert.Equal(t, []string{"r1", "r2", "manual"}, f.BeanNamesForType(beans.TypeOf[*Repo](), true, true))
	assert.Equal(t, []string{"r1", "manual"}, f.BeanNamesForType(beans.TypeOf[*Repo](), false, true))

	all, err := beans.BeansOf[*Repo](f)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "manual", all["manual"].Name)
}

func TestParentFactory(t *testing.T) {
	parent := beans.NewFactory()
	require.NoError(t, beans.Provide(parent, "repo", NewRepo))
	child := beans.NewFactory(beans.WithParentFactory(parent))
	require.NoError(t, beans.Provide(child, "service", NewService))

	svc, err := beans.Get[*Service](child, "service")
	require.NoError(t, err)
	repo, err := parent.GetBean("repo")
	require.NoError(t, err)
	assert.Same(t, repo, svc.Repo)
	assert.True(t, child.ContainsBean("repo"))
	assert.False(t, child.ContainsLocalBean("repo"))
}
