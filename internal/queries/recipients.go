package queries

import (
	"context"
	"fmt"
	"strings"

	"github.com/fixr105/Seven-Render-sub002/internal/idmatch"
	"github.com/fixr105/Seven-Render-sub002/internal/logging"
	"github.com/fixr105/Seven-Render-sub002/internal/notify"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

// notify resolves the recipient for role and sends in the background.
// Nothing here reaches the caller: failures are logged.
func (e *Engine) notify(ctx context.Context, role rbac.Role, kind notify.Kind, fileID, clientID string, actor rbac.Actor, message string) {
	if e.notifier == nil || role == "" {
		return
	}
	detached := context.WithoutCancel(ctx)
	e.dispatch(func() {
		fields := map[string]any{"fileId": fileID, "targetRole": role, "kind": kind}
		to, err := e.ResolveRecipient(detached, role, fileID, clientID)
		if err != nil {
			logging.LogError(e.logger, moduleName, "notify", "resolve recipient", fields, err)
			return
		}
		err = e.notifier.Notify(detached, notify.Notification{
			To:            to,
			RecipientRole: role,
			Kind:          kind,
			Payload: map[string]string{
				"fileId":  fileID,
				"actor":   actor.Identity(),
				"message": message,
			},
		})
		if err != nil {
			logging.LogError(e.logger, moduleName, "notify", "send notification", fields, err)
		}
	})
}

// ResolveRecipient finds the address for a notification to role about
// fileID: the client contact, the client's KAM, an active credit user or the
// assigned NBFC.
func (e *Engine) ResolveRecipient(ctx context.Context, role rbac.Role, fileID, clientID string) (string, error) {
	switch role {
	case rbac.RoleCredit:
		users, err := e.gateway.FetchTable(ctx, records.TableCreditTeam)
		if err != nil {
			return "", err
		}
		for _, user := range users {
			if isActive(user) && user.String(records.FieldEmail) != "" {
				return user.String(records.FieldEmail), nil
			}
		}
		return "", fmt.Errorf("no active credit user with an email")
	case rbac.RoleClient, rbac.RoleKAM, rbac.RoleNBFC:
	default:
		return "", fmt.Errorf("no recipient rule for role %q", role)
	}

	file, err := e.lookup(ctx, records.TableLoanFiles, fileID)
	if err != nil && clientID == "" {
		return "", err
	}
	if role == rbac.RoleNBFC {
		if file == nil {
			return "", err
		}
		nbfc, err := e.lookup(ctx, records.TableNBFCPartners, file.String(records.FieldAssignedNBFC))
		if err != nil {
			return "", err
		}
		return contactEmail(nbfc)
	}

	if clientID == "" {
		clientID = file.String(records.FieldClient, records.FieldClientID)
	}
	client, err := e.lookup(ctx, records.TableClients, clientID)
	if err != nil {
		return "", err
	}
	if role == rbac.RoleClient {
		return contactEmail(client)
	}
	kam, err := e.lookup(ctx, records.TableKAMUsers, client.String(records.FieldAssignedKAM))
	if err != nil {
		return "", err
	}
	return contactEmail(kam)
}

// lookup finds the row of table whose id or business id equals key.
func (e *Engine) lookup(ctx context.Context, table, key string) (records.Row, error) {
	if idmatch.Normalize(key) == "" {
		return nil, fmt.Errorf("no %s reference to look up", table)
	}
	rows, err := e.gateway.FetchTable(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		id, biz := records.Keys(table, row)
		if idmatch.Equal(id, key) || idmatch.Equal(biz, key) {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%s %q not found", table, key)
}

func contactEmail(row records.Row) (string, error) {
	if email := row.String(records.FieldContactEmail, records.FieldEmail); email != "" {
		return email, nil
	}
	return "", fmt.Errorf("%s has no contact email", row.ID())
}

func isActive(row records.Row) bool {
	status := strings.ToLower(row.String(records.FieldStatus))
	return status == "" || status == "active"
}
