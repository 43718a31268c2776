package conf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimalConfig = `{
  "httpServer": {"host": "127.0.0.1", "port": "8080"},
  "tracker": {"baseURL": "https://jira.example.com"}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, "dev", cfg.AppEnv)
	require.Equal(t, "2", cfg.TrackerConf.APIVersion)
	require.Equal(t, 100, cfg.TrackerConf.PageSize)
	require.Equal(t, 30*time.Second, cfg.TrackerConf.HTTPTimeout.Duration)
	require.Equal(t, 500*time.Millisecond, cfg.RetryConf.InitialInterval.Duration)
	require.Equal(t, float64(2), cfg.RetryConf.Multiplier)
	require.Equal(t, 8, cfg.AnalysisConf.Workers)
	require.Equal(t, 30, cfg.AnalysisConf.TopUsers)
	require.Equal(t, 30, cfg.AnalysisConf.MaxBuckets)
	require.Nil(t, cfg.DBConf)
	require.Nil(t, cfg.ScheduleConf)
	require.Equal(t, "127.0.0.1:8080", cfg.HTTPServConf.GetAddress())
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("config.json")
	require.NoError(t, err)
	require.True(t, cfg.TrackerConf.ExpandChangelog)
	require.Equal(t, uint64(5), cfg.RetryConf.MaxRetries)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("TRACKER_TOKEN", "secret")
	t.Setenv("TRACKER_PAGE_SIZE", "50")
	t.Setenv("ANALYSIS_WORKERS", "4")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "analytics")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "runs")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.AppEnv)
	require.Equal(t, "secret", cfg.TrackerConf.Token)
	require.Equal(t, 50, cfg.TrackerConf.PageSize)
	require.Equal(t, 4, cfg.AnalysisConf.Workers)
	require.NotNil(t, cfg.DBConf)
	require.Equal(t, "db", cfg.DBConf.Host)
	require.Equal(t, "runs", cfg.DBConf.Name)
}

func TestLoadSchedule(t *testing.T) {
	t.Setenv("SCHEDULE_PROJECTS", "PROJ, OPS ,")
	body := `{
  "httpServer": {"host": "127.0.0.1", "port": "8080"},
  "tracker": {"baseURL": "https://jira.example.com"},
  "schedule": {"cron": "0 6 * * *", "projects": ["OLD"]}
}`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	require.NotNil(t, cfg.ScheduleConf)
	require.Equal(t, []string{"PROJ", "OPS"}, cfg.ScheduleConf.Projects)
	require.Equal(t, 30*time.Minute, cfg.ScheduleConf.Timeout.Duration)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: `{`},
		{name: "missing tracker url", body: `{"httpServer": {"host": "h", "port": "1"}, "tracker": {}}`},
		{name: "non numeric port", body: `{"httpServer": {"host": "h", "port": "http"}, "tracker": {"baseURL": "https://x.io"}}`},
		{name: "bad api version", body: `{"httpServer": {"host": "h", "port": "1"}, "tracker": {"baseURL": "https://x.io", "apiVersion": "4"}}`},
		{name: "bad duration", body: `{"httpServer": {"host": "h", "port": "1"}, "tracker": {"baseURL": "https://x.io", "httpTimeout": "soon"}}`},
		{name: "too many workers", body: `{"httpServer": {"host": "h", "port": "1"}, "tracker": {"baseURL": "https://x.io"}, "analysis": {"workers": 500}}`},
		{name: "incomplete database", body: `{"httpServer": {"host": "h", "port": "1"}, "tracker": {"baseURL": "https://x.io"}, "dataBase": {"host": "db"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestMustLoadPanicsOnMissingFile(t *testing.T) {
	require.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "missing.json"))
	})
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1.5s"`), &d))
	require.Equal(t, 1500*time.Millisecond, d.Duration)

	require.NoError(t, json.Unmarshal([]byte(`1000000`), &d))
	require.Equal(t, time.Millisecond, d.Duration)

	require.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration{Duration: 2 * time.Minute})
	require.NoError(t, err)
	require.Equal(t, `"2m0s"`, string(out))
}

func TestAnalysisLocation(t *testing.T) {
	a := AnalysisConf{}
	loc, err := a.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	a.Timezone = "Not/AZone"
	_, err = a.Location()
	require.Error(t, err)
}
