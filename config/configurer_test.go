package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
)

type DataSource struct {
	URL     string
	MaxOpen int
	Timeout time.Duration
	Hosts   []string
}

type Client struct {
	Source *DataSource
	Port   int `value:"${client.port:7000}"`
}

func newEnv(t *testing.T, data map[string]any) *config.StandardEnvironment {
	t.Helper()
	env := config.NewEnvironment()
	require.NoError(t, env.AddInMemory("test", data))
	return env
}

func TestPlaceholderConfigurer(t *testing.T) {
	env := newEnv(t, map[string]any{
		"db.url":     "sqlite://memory",
		"db.max":     "25",
		"db.timeout": "2s",
		"db.hosts":   []any{"h1", "h2"},
		"names.ds":   "dataSource",
		"scope.kind": "prototype",
	})

	f := beans.NewFactory()
	require.NoError(t, beans.Register[DataSource](f, "dataSource",
		beans.WithProperty("url", "${db.url}"),
		beans.WithProperty("maxOpen", "${db.max}"),
		beans.WithProperty("timeout", "${db.timeout:5s}"),
		beans.WithProperty("hosts", beans.List{Elements: []any{"${db.hosts[0]}", "${db.hosts[1]}"}})))
	require.NoError(t, beans.Register[Client](f, "client",
		beans.WithScope("${scope.kind}"),
		beans.WithProperty("source", beans.Ref("${names.ds}"))))
	f.AddBeanPostProcessor(beans.NewAutowiredTagPostProcessor(f))

	configurer := config.NewPlaceholderConfigurer(env)
	require.NoError(t, configurer.PostProcessFactory(f))
	assert.True(t, f.HasEmbeddedValueResolver())

	ds, err := beans.Get[*DataSource](f, "dataSource")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://memory", ds.URL)
	assert.Equal(t, 25, ds.MaxOpen)
	assert.Equal(t, 2*time.Second, ds.Timeout)
	assert.Equal(t, []string{"h1", "h2"}, ds.Hosts)

	client, err := beans.Get[*Client](f, "client")
	require.NoError(t, err)
	assert.Same(t, ds, client.Source)
	assert.Equal(t, 7000, client.Port)

	proto, err := f.IsPrototype("client")
	require.NoError(t, err)
	assert.True(t, proto)
}

func TestPlaceholderConfigurerUnresolvable(t *testing.T) {
	env := newEnv(t, nil)
	f := beans.NewFactory()
	require.NoError(t, beans.Register[DataSource](f, "dataSource", beans.WithProperty("url", "${db.url}")))

	err := config.NewPlaceholderConfigurer(env).PostProcessFactory(f)
	var store *beans.DefinitionStoreError
	require.ErrorAs(t, err, &store)
	assert.Equal(t, "dataSource", store.Name)
	var unresolvable *config.UnresolvablePlaceholderError
	require.ErrorAs(t, err, &unresolvable)

	f2 := beans.NewFactory()
	require.NoError(t, beans.Register[DataSource](f2, "dataSource", beans.WithProperty("url", "${db.url}")))
	require.NoError(t, config.NewPlaceholderConfigurer(env, config.IgnoreUnresolvable()).PostProcessFactory(f2))
	ds, err := beans.Get[*DataSource](f2, "dataSource")
	require.NoError(t, err)
	assert.Equal(t, "${db.url}", ds.URL)
}

func TestPlaceholderConfigurerInnerDefinitions(t *testing.T) {
	env := newEnv(t, map[string]any{"inner.url": "mem://inner"})
	f := beans.NewFactory()
	inner := beans.NewBeanDefinition(beans.TypeOf[*DataSource](), beans.WithProperty("url", "${inner.url}"))
	require.NoError(t, beans.Register[Client](f, "client", beans.WithProperty("source", inner)))

	require.NoError(t, config.NewPlaceholderConfigurer(env).PostProcessFactory(f))
	client, err := beans.Get[*Client](f, "client")
	require.NoError(t, err)
	assert.Equal(t, "mem://inner", client.Source.URL)
}

func TestOverrideConfigurer(t *testing.T) {
	env := newEnv(t, map[string]any{
		"override": map[string]any{
			"dataSource.url":     "postgres://prod",
			"dataSource.maxOpen": "${pool}",
		},
		"pool": 50,
	})
	f := beans.NewFactory()
	require.NoError(t, beans.Register[DataSource](f, "dataSource",
		beans.WithProperty("url", "sqlite://memory"),
		beans.WithProperty("maxOpen", 5)))

	require.NoError(t, config.NewOverrideConfigurer(env, "override").PostProcessFactory(f))
	ds, err := beans.Get[*DataSource](f, "dataSource")
	require.NoError(t, err)
	assert.Equal(t, "postgres://prod", ds.URL)
	assert.Equal(t, 50, ds.MaxOpen)
}

func TestOverrideConfigurerInvalidKeys(t *testing.T) {
	env := newEnv(t, map[string]any{"override.ghost.url": "x"})
	f := beans.NewFactory()

	err := config.NewOverrideConfigurer(env, "override").PostProcessFactory(f)
	require.Error(t, err)
	assert.True(t, beans.IsNotFound(err))

	require.NoError(t, config.NewOverrideConfigurer(env, "override", config.IgnoreInvalidKeys()).PostProcessFactory(f))
}

func TestConfigurerOrdering(t *testing.T) {
	env := newEnv(t, nil)
	processors := []beans.FactoryPostProcessor{
		config.NewOverrideConfigurer(env, "override"),
		config.NewPlaceholderConfigurer(env),
	}
	beans.SortByOrder(processors)
	assert.IsType(t, &config.PlaceholderConfigurer{}, processors[0])
}
