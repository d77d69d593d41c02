package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sardine-ai/go-config-advisor/advisor"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// go.opencensus.io starts this worker from a package init (pulled in by the GCS client).
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const document = `name: orders
replicas: 3
ratio: 0.5
hobbies:
  - Reading
  - Cooking
policy:
  environment: Staging
  disabled_rules: [act001]
  severity_overrides:
    jvm003: info
  thresholds:
    heap_headroom_ratio: 0.8
profiles:
  api:
    cpus: 4
    memory: 8GiB
    instances: 3
  batch:
    cpus: 16
    memory: 64GiB
    database:
      memory: 128GiB
      storage: HDD
`

func newFileClient(t *testing.T, body string) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	client, err := NewClient(context.Background(), &source.FileRepository{Name: "local", Path: path}, time.Hour)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestGetters(t *testing.T) {
	client := newFileClient(t, document)

	name, err := client.GetConfigString("name")
	require.NoError(t, err)
	assert.Equal(t, "orders", name)

	replicas, err := client.GetConfigInt("replicas")
	require.NoError(t, err)
	assert.Equal(t, 3, replicas)

	ratio, err := client.GetConfigFloat("ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.5, ratio)
	asFloat, err := client.GetConfigFloat("replicas")
	require.NoError(t, err)
	assert.Equal(t, 3.0, asFloat)

	hobbies, err := client.GetConfigArrayOfStrings("hobbies")
	require.NoError(t, err)
	assert.Equal(t, []string{"Reading", "Cooking"}, hobbies)

	var decoded []string
	require.NoError(t, client.GetConfig("hobbies", &decoded))
	assert.Equal(t, hobbies, decoded)

	_, err = client.GetConfigString("missing")
	assert.ErrorIs(t, err, ErrConfigNotFound)
	_, err = client.GetConfigInt("name")
	assert.Error(t, err)
	_, err = client.GetConfigArrayOfStrings("name")
	assert.Error(t, err)
}

func TestPolicy(t *testing.T) {
	client := newFileClient(t, document)

	policy, err := client.Policy()
	require.NoError(t, err)
	assert.Equal(t, "staging", policy.Environment)
	assert.Equal(t, []string{"ACT001"}, policy.DisabledRules)
	assert.Equal(t, model.SeverityInfo, policy.SeverityOverrides["JVM003"])
	assert.Equal(t, 0.8, policy.Thresholds.HeapHeadroomRatio)
	assert.Equal(t, advisor.DefaultPolicy().Thresholds.PoolOversizeFactor, policy.Thresholds.PoolOversizeFactor)
	assert.Equal(t, 3, policy.Thresholds.SuperuserReservedConnections)
}

func TestPolicyKeepsZeroReservedConnections(t *testing.T) {
	client := newFileClient(t, "policy:\n  thresholds:\n    superuser_reserved_connections: 0\n")
	policy, err := client.Policy()
	require.NoError(t, err)
	assert.Equal(t, 0, policy.Thresholds.SuperuserReservedConnections)
	assert.Equal(t, advisor.DefaultPolicy().Thresholds.MaxConnectionsWarn, policy.Thresholds.MaxConnectionsWarn)
}

func TestPolicyDefaultsWhenAbsent(t *testing.T) {
	client := newFileClient(t, "name: orders\n")
	policy, err := client.Policy()
	require.NoError(t, err)
	assert.Equal(t, advisor.DefaultPolicy(), policy)
}

func TestPolicyRejectsUnknownRule(t *testing.T) {
	client := newFileClient(t, "policy:\n  disabled_rules: [NOPE001]\n")
	_, err := client.Policy()
	assert.Error(t, err)
}

func TestProfile(t *testing.T) {
	client := newFileClient(t, document)

	api, err := client.Profile("api")
	require.NoError(t, err)
	assert.Equal(t, "api", api.Name)
	assert.Equal(t, model.ByteSize(8*model.GiB), api.Memory)
	assert.Equal(t, model.EnvProduction, api.Environment)
	assert.Equal(t, 4, api.Database.CPUs)

	batch, err := client.Profile("batch")
	require.NoError(t, err)
	assert.Equal(t, model.ByteSize(128*model.GiB), batch.Database.Memory)
	assert.Equal(t, model.StorageHDD, batch.Database.Storage)

	_, err = client.Profile("nope")
	assert.ErrorIs(t, err, ErrConfigNotFound)
	assert.Equal(t, []string{"api", "batch"}, client.ProfileNames())
}

type countingRepository struct {
	mu          sync.Mutex
	shouldError bool
	refreshes   int
}

func (r *countingRepository) GetName() string { return "counting" }

func (r *countingRepository) GetData(string) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes, true
}

func (r *countingRepository) GetRawData() []byte { return nil }

func (r *countingRepository) Refresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	if r.shouldError {
		return errors.New("refresh failed")
	}
	return nil
}

func (r *countingRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}

func TestNewClientInitialError(t *testing.T) {
	client, err := NewClient(context.Background(), &countingRepository{shouldError: true}, time.Second)
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestNewClientInvalidInterval(t *testing.T) {
	_, err := NewClient(context.Background(), &countingRepository{}, 0)
	assert.Error(t, err)
}

func TestBackgroundRefresh(t *testing.T) {
	repo := &countingRepository{}
	client, err := NewClient(context.Background(), repo, 10*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return repo.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	client.Close()

	stopped := repo.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, repo.count())
}

func TestRefreshStopsWithContext(t *testing.T) {
	repo := &countingRepository{}
	ctx, cancel := context.WithCancel(context.Background())
	client, err := NewClient(ctx, repo, time.Hour)
	require.NoError(t, err)
	cancel()
	client.Close()
	assert.Equal(t, 1, repo.count())
}
