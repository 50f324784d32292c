package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/logging"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

// Profile is the directory view of an actor. Record is the actor's own
// directory row; Settings is enrichment and may be missing, in which case
// Partial is set.
type Profile struct {
	Actor    rbac.Actor  `json:"actor"`
	Record   records.Row `json:"record,omitempty"`
	Settings records.Row `json:"settings,omitempty"`
	Partial  bool        `json:"partial"`
}

// directoryTables says where each role's own row lives and which field
// carries its scope id.
var directoryTables = map[rbac.Role]string{
	rbac.RoleClient: records.TableClients,
	rbac.RoleKAM:    records.TableKAMUsers,
	rbac.RoleNBFC:   records.TableNBFCPartners,
	rbac.RoleCredit: records.TableCreditTeam,
}

// ResolveProfile loads the actor's directory row and, for clients, their
// settings, concurrently and under the profile lookup timeout. The directory
// row decides the call; a settings lookup that fails or runs out of time
// only marks the profile partial.
func (s *Service) ResolveProfile(ctx context.Context, actor rbac.Actor) (Profile, error) {
	profile := Profile{Actor: actor}
	table, ok := directoryTables[actor.Role]
	if !ok {
		return profile, nil
	}
	key := actor.ScopeID()
	if actor.Role == rbac.RoleCredit {
		key = actor.Email
	}
	if idmatch.Normalize(key) == "" {
		return Profile{}, apperr.IdentityMismatch(fmt.Sprintf("%s actor has no directory id", actor.Role))
	}

	if s.cfg.ProfileLookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProfileLookupTimeout)
		defer cancel()
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		row, err := s.lookupDirectory(gctx, table, key)
		if err != nil {
			return err
		}
		mu.Lock()
		profile.Record = row
		mu.Unlock()
		return nil
	})
	if actor.Role == rbac.RoleClient {
		g.Go(func() error {
			// enrichment: never fails the group
			row, err := s.lookupSettings(gctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.LogWarning(s.logger, moduleName, "ResolveProfile", "client settings unavailable, returning a partial profile",
					map[string]any{"clientId": key, "error": err.Error()})
				profile.Partial = true
				return nil
			}
			profile.Settings = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Profile{}, err
	}

	if profile.Actor.Email == "" {
		profile.Actor.Email = profile.Record.String(records.FieldEmail, records.FieldContactEmail)
	}
	return profile, nil
}

func (s *Service) lookupDirectory(ctx context.Context, table, key string) (records.Row, error) {
	rows, err := s.gateway.FetchTable(ctx, table)
	if err != nil {
		return nil, apperr.FromStore(fmt.Sprintf("load %s", table), err)
	}
	for _, row := range rows {
		id, biz := records.Keys(table, row)
		if idmatch.Equal(id, key) || idmatch.Equal(biz, key) || idmatch.Equal(row.Get(records.FieldEmail), key) {
			return row, nil
		}
	}
	return nil, apperr.NotFound(fmt.Sprintf("no %s entry for %q", table, key))
}

// lookupSettings returns the settings row of clientID. No row is not an
// error: settings are optional.
func (s *Service) lookupSettings(ctx context.Context, clientID string) (records.Row, error) {
	rows, err := s.gateway.FetchTable(ctx, records.TableClientSettings)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if idmatch.Equal(row.Get(records.FieldClientID, records.FieldClient), clientID) {
			return row, nil
		}
	}
	return records.Row{}, nil
}
