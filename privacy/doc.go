// Package privacy provides access policies evaluated by the save and load
// engines through their listener hooks.
//
// A Policy groups a save policy and a load policy. Each is an ordered list
// of rules evaluated against every instance:
//
//	policy := privacy.Policy{
//	    Save: privacy.SavePolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.HasRole("admin"),
//	        privacy.TenantRule(tenantField),
//	        privacy.AlwaysDenyRule(),
//	    },
//	    Load: privacy.LoadPolicy{
//	        privacy.DenyIfNoViewer(),
//	    },
//	}
//	client, err := store.Open("pgx", dsn, reg, store.WithListeners(policy))
//
// # Rule Evaluation
//
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: Grants access and stops evaluation
//   - Deny: Denies access and stops evaluation
//   - Skip: Continues to the next rule
//
// If all rules return Skip, the instance is allowed. End a policy with
// AlwaysDenyRule to deny by default.
//
// A denied save rolls back the whole save. A denied load fails the load.
// The returned error wraps Deny:
//
//	if errors.Is(err, privacy.Deny) { ... }
//
// # Viewer
//
// Rules read the acting user from the context:
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID:   "user-123",
//	    Roles:    []string{"user"},
//	    TenantID: "tenant-abc",
//	})
//	err := client.Save(ctx, order)
//
// A decision attached with DecisionContext bypasses all rules, e.g. for
// system jobs.
package privacy
