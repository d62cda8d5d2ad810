package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/database"
)

type User struct {
	gorm.Model
	Name string
}

type MockDBService struct {
	Master *gorm.DB `di:"master"`
	Slave  *gorm.DB `di:"slave,?"`
}

type DefaultDBService struct {
	DB *gorm.DB `di:""`
}

func newEnv(t *testing.T, data map[string]any) config.Environment {
	env := config.NewEnvironment()
	require.NoError(t, env.AddInMemory("test", data))
	return env
}

func TestDatabaseConfiguration(t *testing.T) {
	env := newEnv(t, map[string]any{
		"db": map[string]any{
			"master": map[string]any{
				"dsn":            "file:master?mode=memory&cache=shared",
				"max_open_conns": 5,
			},
		},
	})

	c, err := core.New(
		core.WithEnvironment(env),
		database.New(database.WithConfig("master", "db.master", sqlite.Open, func(o *database.DatabaseOptions) {
			o.AutoMigrate = []any{&User{}}
		})),
		core.WithRegistrar(func(r beans.Registry) error {
			return beans.Register[MockDBService](r, "dbService")
		}),
	)
	require.NoError(t, err)
	require.NoError(t, c.Refresh(t.Context()))

	svc := beans.MustGet[*MockDBService](c, "dbService")
	require.NotNil(t, svc.Master)
	assert.Nil(t, svc.Slave)

	require.NoError(t, svc.Master.Create(&User{Name: "alice"}).Error)
	var count int64
	require.NoError(t, svc.Master.Model(&User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	sqlDB, err := svc.Master.DB()
	require.NoError(t, err)
	assert.Equal(t, 5, sqlDB.Stats().MaxOpenConnections)

	factory, err := beans.Get[*database.FactoryBean](c, "&master")
	require.NoError(t, err)
	assert.Equal(t, "master", factory.Options.Name)

	require.NoError(t, c.Close(t.Context()))
	assert.Error(t, sqlDB.Ping(), "connection pool should be closed with the context")
}

func TestDefaultDatabaseIsPrimary(t *testing.T) {
	c, err := core.New(
		core.WithEnvironment(config.NewEnvironment()),
		database.New(
			database.WithDatabase("default", sqlite.Open("file:primary?mode=memory&cache=shared")),
			database.WithDatabase("report", sqlite.Open("file:report?mode=memory&cache=shared"), func(o *database.DatabaseOptions) {
				o.Lazy = true
			}),
		),
		core.WithRegistrar(func(r beans.Registry) error {
			return beans.Register[DefaultDBService](r, "service")
		}),
	)
	require.NoError(t, err)

	names := c.BeanNamesForType(beans.TypeOf[*gorm.DB](), true, false)
	assert.ElementsMatch(t, []string{"default", "report"}, names)

	require.NoError(t, c.Refresh(t.Context()))
	defer c.Close(t.Context())

	svc := beans.MustGet[*DefaultDBService](c, "service")
	def := beans.MustGet[*gorm.DB](c, "default")
	assert.Same(t, def, svc.DB)
	assert.NotSame(t, def, beans.MustGet[*gorm.DB](c, "report"))
}

func TestDatabaseBuilderErrors(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		_, err := core.New(
			core.WithEnvironment(config.NewEnvironment()),
			database.New(
				database.WithDatabase("dup", sqlite.Open("file:dup?mode=memory")),
				database.WithDatabase("dup", sqlite.Open("file:dup?mode=memory")),
			),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database 'dup' already configured")
	})

	t.Run("missing dialector", func(t *testing.T) {
		_, err := core.New(
			core.WithEnvironment(config.NewEnvironment()),
			database.New(database.WithDatabase("broken", nil)),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database dialector is required")
	})

	t.Run("missing section", func(t *testing.T) {
		_, err := core.New(
			core.WithEnvironment(config.NewEnvironment()),
			database.New(database.WithConfig("master", "db.master", sqlite.Open)),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db.master")
	})
}

func TestRegisterWithPlainFactory(t *testing.T) {
	f := beans.NewFactory()
	opts := database.NewDefaultOptions("plain", sqlite.Open("file:plain?mode=memory&cache=shared"))
	require.NoError(t, database.Register(f, *opts))

	assert.True(t, f.IsFactoryBean("plain"))
	assert.False(t, f.ContainsSingleton("plain"))

	db, err := beans.Get[*gorm.DB](f, "plain")
	require.NoError(t, err)
	require.NoError(t, db.Exec("SELECT 1").Error)

	f.DestroySingletons()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping())
}
