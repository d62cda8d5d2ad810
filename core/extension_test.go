package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
)

// 定义各种 Extension 实现用于测试

// EmptyExtension 未实现任何接口
type EmptyExtension struct{}

func (e *EmptyExtension) Name() string { return "Empty" }

// RegistrarOnlyExtension 仅实现 DefinitionRegistrar
type RegistrarOnlyExtension struct{}

type greeter struct {
	Greeting string `value:"${greeting:hello}"`
}

func (e *RegistrarOnlyExtension) Name() string { return "RegistrarOnly" }
func (e *RegistrarOnlyExtension) RegisterDefinitions(r beans.Registry, env config.Environment) error {
	return beans.Register[greeter](r, "greeter")
}

// ConfiguratorOnlyExtension 仅实现 ContextConfigurator
type ConfiguratorOnlyExtension struct {
	events []Event
}

func (e *ConfiguratorOnlyExtension) Name() string { return "ConfiguratorOnly" }
func (e *ConfiguratorOnlyExtension) ConfigureContext(c *Context) error {
	c.AddListener(ListenerFunc(func(event Event) { e.events = append(e.events, event) }))
	return nil
}

// FullExtension 同时实现 DefinitionRegistrar 和 ContextConfigurator
type FullExtension struct {
	order []string
}

func (e *FullExtension) Name() string { return "Full" }
func (e *FullExtension) RegisterDefinitions(beans.Registry, config.Environment) error {
	e.order = append(e.order, "definitions")
	return nil
}
func (e *FullExtension) ConfigureContext(*Context) error {
	e.order = append(e.order, "context")
	return nil
}

func TestWithExtension_Error_WhenNoInterfaceImplemented(t *testing.T) {
	_, err := New(WithExtension(&EmptyExtension{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extension 'Empty' does not implement any supported interfaces")
}

func TestWithExtension_RegistrarOnly(t *testing.T) {
	c, err := New(WithExtension(&RegistrarOnlyExtension{}), WithEnvironment(config.NewEnvironment()))
	require.NoError(t, err)
	assert.True(t, c.ContainsBeanDefinition("greeter"))
	require.Len(t, c.Extensions(), 1)
}

func TestWithExtension_ConfiguratorOnly(t *testing.T) {
	ext := &ConfiguratorOnlyExtension{}
	c, err := New(WithExtension(ext), WithEnvironment(config.NewEnvironment()))
	require.NoError(t, err)
	assert.Len(t, c.Listeners(), 1)
}

func TestWithExtension_Full(t *testing.T) {
	ext := &FullExtension{}
	_, err := New(WithExtension(ext), WithEnvironment(config.NewEnvironment()))
	require.NoError(t, err)
	assert.Equal(t, []string{"context", "definitions"}, ext.order)
}

func TestWithExtension_Multiple(t *testing.T) {
	listener := &ConfiguratorOnlyExtension{}
	c, err := New(
		WithEnvironment(config.NewEnvironment()),
		WithExtension(&RegistrarOnlyExtension{}, listener, &FullExtension{}),
	)
	require.NoError(t, err)
	assert.Len(t, c.Extensions(), 3)

	require.NoError(t, c.Refresh(t.Context()))
	defer c.Close(t.Context())

	g, err := beans.Get[*greeter](c, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "hello", g.Greeting)

	require.NotEmpty(t, listener.events)
	_, ok := listener.events[len(listener.events)-1].(RefreshedEvent)
	assert.True(t, ok)
}
