package dig_container

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/progress"
	inmemdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database/inmem"
	redisdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/redis"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/tests/testutil"
)

func Test_newRecoveryStore(t *testing.T) {
	conf := core.NewTestConfig()
	gw := inmemdb.NewGateway()
	srv := miniredis.RunT(t)
	conf.Redis.Addr = srv.Addr()
	client := newRedis(conf, DBLoggerParam{Logger: new(testutil.Logger)})
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	tests := []struct {
		backend  string
		nilRedis bool
		want     interface{}
		wantErr  bool
	}{
		{backend: "", want: &enrollment.GatewayRecoveryStore{}},
		{backend: "database", want: &enrollment.GatewayRecoveryStore{}},
		{backend: "memory", want: &enrollment.MemoryRecoveryStore{}},
		{backend: "redis", want: &redisdb.RecoveryStore{}},
		{backend: "redis", nilRedis: true, wantErr: true},
		{backend: "mongo", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			conf.Enrollment.RecoveryBackend = tt.backend
			c := client
			if tt.nilRedis {
				c = nil
			}
			store, err := newRecoveryStore(conf, gw, c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}
}

func Test_newProgressCache(t *testing.T) {
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)

	client := newRedis(conf, DBLoggerParam{Logger: logger})
	assert.Nil(t, client)
	assert.Equal(t, 1, logger.Count("warn"))
	assert.IsType(t, progress.NopCache{}, newProgressCache(client))

	srv := miniredis.RunT(t)
	conf.Redis.Addr = srv.Addr()
	client = newRedis(conf, DBLoggerParam{Logger: logger})
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	assert.IsType(t, &redisdb.Cache{}, newProgressCache(client))
}

func Test_newEnrollmentDeps(t *testing.T) {
	conf := core.NewTestConfig()
	gw := inmemdb.NewGateway()
	logger := new(testutil.Logger)
	progressSvc := progress.NewService(gw, nil, logger, 0)

	deps := newEnrollmentDeps(EnrollmentParam{Conf: conf, Gateway: gw, Progress: progressSvc, Logger: logger})
	assert.Same(t, progressSvc, deps.Progress, "new enrollments refresh the progress summary")
	assert.NotNil(t, deps.Sealer)
	assert.Equal(t, gw, deps.Gateway)
}
