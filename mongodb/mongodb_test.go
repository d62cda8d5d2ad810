package mongodb_test

import (
	"testing"
	"time"

	"github.com/gocrud/mgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/mongodb"
)

type reportService struct {
	Mongo *mgo.Client `di:""`
}

func TestClientIsCreatedOnDemand(t *testing.T) {
	env := config.NewEnvironment()
	require.NoError(t, env.AddInMemory("test", map[string]any{
		"mongo": map[string]any{"default": map[string]any{
			"uri":      "mongodb://localhost:27017/?directConnection=true",
			"username": "example",
			"password": "example",
		}},
	}))

	c, err := core.New(
		core.WithEnvironment(env),
		mongodb.New(mongodb.WithConfig("default", "mongo.default", func(o *mongodb.MongoOptions) {
			o.Timeout = 100 * time.Millisecond
		})),
	)
	require.NoError(t, err)
	require.NoError(t, c.Refresh(t.Context()))

	f := c.Factory()
	assert.True(t, f.ContainsSingleton("default"))
	factory := beans.MustGet[*mongodb.FactoryBean](c, "&default")
	assert.Equal(t, "example", factory.Options.Username)
	assert.True(t, factory.Options.Primary)

	names := c.BeanNamesForType(beans.TypeOf[*mgo.Client](), true, false)
	assert.Equal(t, []string{"default"}, names)

	require.NoError(t, c.RegisterBeanDefinition("reports", beans.NewBeanDefinition(beans.TypeOf[reportService]())))
	svc := beans.MustGet[*reportService](c, "reports")
	assert.NotNil(t, svc.Mongo)

	assert.NoError(t, c.Close(t.Context()))
}

func TestBuilderValidation(t *testing.T) {
	cases := []struct {
		name   string
		option core.Option
		err    string
	}{
		{"missing name", mongodb.New(mongodb.WithClient("", "mongodb://localhost:27017")), "mongo client name is required"},
		{"missing uri", mongodb.New(mongodb.WithClient("test", "")), "mongo uri is required"},
		{"duplicate", mongodb.New(
			mongodb.WithClient("test", "mongodb://localhost:27017"),
			mongodb.WithClient("test", "mongodb://localhost:27018"),
		), "already configured"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := core.New(core.WithEnvironment(config.NewEnvironment()), tc.option)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}
