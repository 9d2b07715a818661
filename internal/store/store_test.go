package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calmdsl/internal/api"
	"calmdsl/internal/compiler"
	"calmdsl/pkg/payload"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_ReplaceAndFind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, payload.KindSubnet, []Entity{
		{Name: "vlan.0", UUID: "s1", Cluster: "cluster-a", Extra: map[string]string{"subnet_type": "VLAN"}},
		{Name: "vlan.0", UUID: "s2", Cluster: "cluster-b"},
		{Name: "overlay", UUID: "s3", VPC: "vpc-1"},
		{Name: "no-uuid"},
	}))

	all, err := s.Find(ctx, Filter{Kind: payload.KindSubnet})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := s.Find(ctx, Filter{Kind: payload.KindSubnet, Name: "vlan.0", Cluster: "cluster-a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].UUID)
	assert.Equal(t, "VLAN", got[0].Extra["subnet_type"])

	// replacing drops entities no longer on the server
	require.NoError(t, s.Replace(ctx, payload.KindSubnet, []Entity{{Name: "overlay", UUID: "s3", VPC: "vpc-1"}}))
	all, err = s.Find(ctx, Filter{Kind: payload.KindSubnet})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "overlay", all[0].Name)
}

func TestStore_AccountFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Entity{Kind: payload.KindCluster, Name: "c1", UUID: "u1"}))
	require.NoError(t, s.Put(ctx, Entity{Kind: payload.KindCluster, Name: "c2", UUID: "u2", Account: "pc-2"}))

	got, err := s.Find(ctx, Filter{Kind: payload.KindCluster, Account: "pc-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].Name)

	got, err = s.Find(ctx, Filter{Kind: payload.KindCluster, Account: "pc-2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_Info(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Empty(t, info.Version)
	assert.True(t, info.UpdatedAt.IsZero())

	require.NoError(t, s.Put(ctx, Entity{Kind: payload.KindImage, Name: "centos", UUID: "i1"}))
	require.NoError(t, s.SetVersion(ctx, "3.7.0"))

	info, err = s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.7.0", info.Version)
	assert.WithinDuration(t, time.Now(), info.UpdatedAt, time.Minute)
	assert.Equal(t, map[string]int{payload.KindImage: 1}, info.Counts)

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.7.0", v)
}

func TestResolver(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, payload.KindSubnet, []Entity{
		{Name: "vlan.0", UUID: "s1", Cluster: "cluster-a"},
		{Name: "vlan.0", UUID: "s2", Cluster: "cluster-b"},
	}))
	r := NewResolver(s)

	ref, err := r.Resolve(compiler.Query{Kind: payload.KindSubnet, Name: "vlan.0", Cluster: "cluster-b"})
	require.NoError(t, err)
	assert.Equal(t, payload.Reference{Kind: payload.KindSubnet, Name: "vlan.0", UUID: "s2"}, ref)

	_, err = r.Resolve(compiler.Query{Kind: payload.KindSubnet, Name: "vlan.0"})
	assert.ErrorContains(t, err, "2 entities of kind subnet")

	_, err = r.Resolve(compiler.Query{Kind: payload.KindSubnet, Name: "vlan.9"})
	assert.ErrorIs(t, err, compiler.ErrEntityNotFound)
}

func TestSync(t *testing.T) {
	lists := map[string][]map[string]any{
		"clusters": {
			{"metadata": map[string]any{"kind": "cluster", "name": "cluster-a", "uuid": "c1"}, "status": map[string]any{"state": "COMPLETE"}},
		},
		"subnets": {
			{
				"metadata": map[string]any{"kind": "subnet", "name": "vlan.0", "uuid": "s1"},
				"spec": map[string]any{
					"cluster_reference": map[string]any{"kind": "cluster", "name": "cluster-a", "uuid": "c1"},
					"resources":         map[string]any{"subnet_type": "VLAN"},
				},
				"status": map[string]any{"state": "COMPLETE"},
			},
			{
				"metadata": map[string]any{"kind": "subnet", "name": "vlan.0", "uuid": "s2"},
				"spec": map[string]any{
					"cluster_reference": map[string]any{"kind": "cluster", "name": "cluster-a", "uuid": "c1"},
					"resources": map[string]any{
						"subnet_type":       "VLAN",
						"account_reference": map[string]any{"kind": "account", "uuid": "a2"},
					},
				},
				"status": map[string]any{"state": "COMPLETE"},
			},
			{"metadata": map[string]any{"kind": "subnet", "name": "gone", "uuid": "s9"}, "status": map[string]any{"state": "DELETED"}},
		},
		"accounts": {
			{
				"metadata": map[string]any{"kind": "account", "name": "NTNX_LOCAL_AZ", "uuid": "a1"},
				"status":   map[string]any{"state": "VERIFIED", "resources": map[string]any{"type": "nutanix_pc"}},
			},
			{
				"metadata": map[string]any{"kind": "account", "name": "pc-remote", "uuid": "a2"},
				"status":   map[string]any{"state": "VERIFIED", "resources": map[string]any{"type": "nutanix_pc"}},
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/nutanix/v3/")
		if path == "services/nucalm/version" {
			_ = json.NewEncoder(w).Encode(map[string]any{"version": "3.6.0"})
			return
		}
		collection := strings.TrimSuffix(path, "/list")
		switch collection {
		case "vpcs", "tunnels":
			w.WriteHeader(http.StatusNotFound)
			return
		}
		entities := lists[collection]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"metadata": map[string]any{"total_matches": len(entities)},
			"entities": entities,
		})
	}))
	defer srv.Close()

	client, err := api.New(api.Config{BaseURL: srv.URL + "/api/nutanix/v3/"})
	require.NoError(t, err)
	s := openTestStore(t)
	ctx := context.Background()

	result, err := Sync(ctx, client, s, nil)
	require.NoError(t, err)
	assert.Equal(t, "3.6.0", result.Version)
	assert.ElementsMatch(t, []string{"vpcs", "tunnels"}, result.Skipped)
	assert.Equal(t, 2, result.Counts[payload.KindSubnet])
	assert.Equal(t, 0, result.Counts[payload.KindImage])

	subnets, err := s.Find(ctx, Filter{Kind: payload.KindSubnet, Account: "pc-remote"})
	require.NoError(t, err)
	require.Len(t, subnets, 2, "subnets without an account match any account")

	remote, err := s.Find(ctx, Filter{Kind: payload.KindSubnet, Name: "vlan.0", Account: "NTNX_LOCAL_AZ"})
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "s1", remote[0].UUID)
	assert.Equal(t, "cluster-a", remote[0].Cluster)
	assert.Equal(t, "VLAN", remote[0].Extra["subnet_type"])

	ref, err := NewResolver(s).Resolve(compiler.Query{Kind: payload.KindSubnet, Name: "vlan.0", Account: "pc-remote"})
	require.Error(t, err, "both subnets match the remote account")
	assert.Contains(t, err.Error(), "2 entities of kind subnet")
	assert.Empty(t, ref.UUID)

	accounts, err := s.Find(ctx, Filter{Kind: payload.KindAccount})
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "nutanix_pc", accounts[0].Extra["type"])
}
