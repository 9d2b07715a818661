package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"calmdsl/internal/api"
	"calmdsl/pkg/payload"
)

// collections lists the platform entities kept in the cache.
var collections = []struct {
	kind       string
	collection string
}{
	{payload.KindAccount, "accounts"},
	{payload.KindCluster, "clusters"},
	{payload.KindSubnet, "subnets"},
	{payload.KindVPC, "vpcs"},
	{payload.KindImage, "images"},
	{payload.KindTunnel, "tunnels"},
	{payload.KindUser, "users"},
	{payload.KindUserGroup, "user_groups"},
	{payload.KindProject, "projects"},
	{payload.KindEnvironment, "environments"},
}

// attributes are the parts of an entity's spec or status the cache keeps.
type attributes struct {
	AccountReference *payload.Reference `json:"account_reference"`
	ClusterReference *payload.Reference `json:"cluster_reference"`
	VPCReference     *payload.Reference `json:"vpc_reference"`
	SubnetType       string             `json:"subnet_type"`
	ImageType        string             `json:"image_type"`
	Type             string             `json:"type"`
	Resources        *attributes        `json:"resources"`
}

func (a *attributes) merge(o *attributes) {
	if o == nil {
		return
	}
	if a.AccountReference == nil {
		a.AccountReference = o.AccountReference
	}
	if a.ClusterReference == nil {
		a.ClusterReference = o.ClusterReference
	}
	if a.VPCReference == nil {
		a.VPCReference = o.VPCReference
	}
	if a.SubnetType == "" {
		a.SubnetType = o.SubnetType
	}
	if a.ImageType == "" {
		a.ImageType = o.ImageType
	}
	if a.Type == "" {
		a.Type = o.Type
	}
	a.merge(o.Resources)
}

// SyncResult counts the entities cached per kind.
type SyncResult struct {
	Version string
	Counts  map[string]int
	Skipped []string
}

// Sync refreshes the cache from the server. Collections the server does not
// know (older releases lack vpcs and tunnels) are skipped; other failures are
// collected and returned together after every collection was tried.
func Sync(ctx context.Context, client *api.Client, s *Store, logger *slog.Logger) (*SyncResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	result := &SyncResult{Counts: map[string]int{}}
	var errs *multierror.Error
	// accounts maps account UUIDs to names; accounts are listed first.
	accounts := map[string]string{}

	for _, c := range collections {
		list, err := client.Resource(c.collection).ListAll(ctx, "")
		if api.IsNotFound(err) {
			logger.Warn("Collection not available on this server", "collection", c.collection)
			result.Skipped = append(result.Skipped, c.collection)
			continue
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("list %s: %w", c.collection, err))
			continue
		}

		entities := make([]Entity, 0, len(list))
		for _, e := range list {
			if e.Status.State == "DELETED" {
				continue
			}
			entities = append(entities, toEntity(c.kind, e, accounts))
		}
		if c.kind == payload.KindAccount {
			for _, e := range entities {
				accounts[e.UUID] = e.Name
			}
		}
		if err := s.Replace(ctx, c.kind, entities); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		result.Counts[c.kind] = len(entities)
		logger.Debug("Cached entities", "kind", c.kind, "count", len(entities))
	}

	version, err := client.Version.Get(ctx)
	if err != nil {
		errs = multierror.Append(errs, err)
	} else {
		result.Version = version.String()
		if err := s.SetVersion(ctx, result.Version); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return result, errs.ErrorOrNil()
}

// toEntity extracts the cached fields of e. Account references carrying only
// a UUID are named through accounts.
func toEntity(kind string, e api.Entity, accounts map[string]string) Entity {
	out := Entity{Kind: kind, Name: e.Metadata.Name, UUID: e.Metadata.UUID, Extra: map[string]string{}}
	if out.Name == "" {
		out.Name = e.Status.Name
	}

	var attrs attributes
	var fromSpec attributes
	if len(e.Spec) > 0 && json.Unmarshal(e.Spec, &fromSpec) == nil {
		attrs.merge(&fromSpec)
	}
	var fromStatus attributes
	if len(e.Status.Resources) > 0 && json.Unmarshal(e.Status.Resources, &fromStatus) == nil {
		attrs.merge(&fromStatus)
	}

	if ref := attrs.AccountReference; ref != nil {
		out.Account = ref.Name
		if out.Account == "" {
			out.Account = accounts[ref.UUID]
		}
	}
	if attrs.ClusterReference != nil {
		out.Cluster = attrs.ClusterReference.Name
	}
	if attrs.VPCReference != nil {
		out.VPC = attrs.VPCReference.Name
	}
	if attrs.SubnetType != "" {
		out.Extra["subnet_type"] = attrs.SubnetType
	}
	if attrs.ImageType != "" {
		out.Extra["image_type"] = attrs.ImageType
	}
	if kind == payload.KindAccount && attrs.Type != "" {
		out.Extra["type"] = attrs.Type
	}
	return out
}
