package reminder

import (
	"context"
	"fmt"
	"math"

	"flowdesk/internal/dispatch"
	"flowdesk/internal/model"
	"flowdesk/pkg/logx"
)

// ComplianceCheck computes per-organization submission rates and alerts
// admins and managers when either rate drops below the threshold. The plan
// rate covers the current week (plans are due at its start); the report rate
// covers the previous week (reports close it out). A claimed per-org,
// per-ISO-week key keeps the alert to one per organization per week.
func (e *Engine) ComplianceCheck(ctx context.Context) error {
	orgs, err := e.store.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.checkOrgCompliance(ctx, org); err != nil {
			e.log.Error("compliance check failed",
				logx.String("org", org.ID),
				logx.Err(err),
			)
		}
	}
	return nil
}

func (e *Engine) checkOrgCompliance(ctx context.Context, org model.Organization) error {
	settings, err := e.store.GetReportSettings(ctx, org.ID)
	if err != nil {
		return err
	}
	if !settings.Enforced || !settings.ManagerAlerts {
		return nil
	}

	users, err := e.store.ListActiveUsers(ctx, org.ID)
	if err != nil {
		return err
	}
	total := len(users)
	if total == 0 {
		return nil
	}

	now := e.now().In(e.opts.Location)
	planWeek := WeekStart(now)
	reportWeek := planWeek.AddDate(0, 0, -7)

	planSubmitted, err := e.store.CountSubmitted(ctx, model.KindPlan, org.ID, planWeek)
	if err != nil {
		return err
	}
	reportSubmitted, err := e.store.CountSubmitted(ctx, model.KindReport, org.ID, reportWeek)
	if err != nil {
		return err
	}

	planRate := rate(planSubmitted, total)
	reportRate := rate(reportSubmitted, total)
	if planRate >= e.opts.ComplianceThreshold && reportRate >= e.opts.ComplianceThreshold {
		return nil
	}

	year, week := now.ISOWeek()
	key := fmt.Sprintf("%s|%s|%d-W%02d", org.ID, model.TypeLowComplianceAlert, year, week)
	until := planWeek.AddDate(0, 0, 7)
	ok, err := e.store.ClaimDedup(ctx, key, until)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	recipients, err := e.store.ListUsersByRole(ctx, org.ID, model.RoleAdmin, model.RoleManager)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(recipients))
	for _, u := range recipients {
		ids = append(ids, u.ID)
	}
	overdue := (total - planSubmitted) + (total - reportSubmitted)

	created, failed := e.notifier.CreateBulk(ctx, ids, dispatch.Spec{
		OrgID: org.ID,
		Type:  model.TypeLowComplianceAlert,
		Payload: map[string]any{
			"planRate":     planRate,
			"reportRate":   reportRate,
			"overdueCount": overdue,
			"totalUsers":   total,
		},
		EntityType: "organization",
		EntityID:   org.ID,
	})
	e.log.Warn("low compliance alert",
		logx.String("org", org.ID),
		logx.Float64("plan_rate", planRate),
		logx.Float64("report_rate", reportRate),
		logx.Int("recipients", created),
		logx.Int("failed", failed),
	)
	return nil
}

func rate(submitted, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(submitted)/float64(total)*1000) / 10
}
