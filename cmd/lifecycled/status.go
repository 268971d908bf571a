// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"storj.io/keeper/lifecycle"
	"storj.io/keeper/lifecycle/eviction"
	"storj.io/keeper/lifecycle/fetchorder"
	"storj.io/keeper/lifecycle/ranking"
	"storj.io/keeper/pkg/process"
)

var (
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show policies, fetch orders and source rankings",
		RunE:  cmdStatus,
	}

	primaryColor = lipgloss.Color("#7571f9")
	mutedColor   = lipgloss.Color("#6c757d")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	emptyStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	statusStyles = map[string]lipgloss.Style{
		string(eviction.Started):     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		string(eviction.Queued):      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		string(eviction.Canceled):    lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		string(fetchorder.Running):   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		string(fetchorder.Pending):   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		string(fetchorder.Completed): lipgloss.NewStyle().Foreground(mutedColor),
		string(fetchorder.Failed):    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// maxStatusOrders bounds the fetch orders shown by status.
const maxStatusOrders = 50

func cmdStatus(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)
	return withPeer(cmd, func(peer *lifecycle.Peer) error {
		policies, err := peer.Eviction.Service.List(ctx)
		if err != nil {
			return err
		}
		orders, err := peer.FetchOrder.Service.List(ctx, fetchorder.ListOptions{Limit: maxStatusOrders})
		if err != nil {
			return err
		}
		syncs, err := peer.DB.Synchronizers().List(ctx)
		if err != nil {
			return err
		}
		rankings, err := loadRankings(ctx, peer.DB.Rankings(), syncs)
		if err != nil {
			return err
		}

		fmt.Println(lipgloss.JoinVertical(lipgloss.Left,
			renderPolicies(policies),
			"",
			renderOrders(orders),
			"",
			renderRankings(rankings),
		))
		return nil
	})
}

type synchronizerRanking struct {
	ID      string
	Sources []string
}

func loadRankings(ctx context.Context, db ranking.RankingDB, syncs []ranking.Synchronizer) ([]synchronizerRanking, error) {
	rankings := make([]synchronizerRanking, 0, len(syncs))
	for _, sync := range syncs {
		ids, err := db.Ranking(ctx, sync.ID)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, synchronizerRanking{ID: sync.ID, Sources: ids})
	}
	return rankings, nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(primaryColor)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func styled(status string) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(status)
	}
	return status
}

func renderPolicies(policies []eviction.Policy) string {
	title := headerStyle.Render("EVICTION POLICIES")
	if len(policies) == 0 {
		return title + "\n" + emptyStyle.Render("no policies")
	}

	t := newTable("NAME", "SCHEDULE", "STATUS", "KEEP", "LAST RUN", "EVICTED", "RECLAIMED", "ERROR")
	for _, policy := range policies {
		schedule := "manual"
		if policy.Cron != nil {
			schedule = policy.Cron.Expression
			if !policy.Cron.Active {
				schedule += " (inactive)"
			}
		}

		lastRun, evicted, reclaimed, runErr := "never", "-", "-", ""
		if run := policy.LastRun; run != nil {
			lastRun = run.StartedAt.Format(time.RFC3339)
			evicted = strconv.Itoa(run.Evicted)
			reclaimed = formatSize(run.Reclaimed)
			runErr = run.Error
		}

		t.Row(policy.Name, schedule, styled(string(policy.Status)), policy.KeepPeriod.String(), lastRun, evicted, reclaimed, runErr)
	}
	return title + "\n" + t.Render()
}

func renderOrders(orders []fetchorder.Order) string {
	title := headerStyle.Render("FETCH ORDERS")
	if len(orders) == 0 {
		return title + "\n" + emptyStyle.Render("no fetch orders")
	}

	t := newTable("STORE", "OBJECT", "STATUS", "ETA", "OWNERS", "MESSAGE")
	for _, order := range orders {
		eta := "-"
		if order.EstimatedCompletion != nil {
			eta = order.EstimatedCompletion.Format(time.RFC3339)
		}
		t.Row(order.Store, order.ObjectID, styled(string(order.Status)), eta, strings.Join(order.Owners, ","), order.StatusMessage)
	}
	return title + "\n" + t.Render()
}

func renderRankings(rankings []synchronizerRanking) string {
	title := headerStyle.Render("SOURCE RANKINGS")
	if len(rankings) == 0 {
		return title + "\n" + emptyStyle.Render("no synchronizers")
	}

	t := newTable("SYNCHRONIZER", "SOURCES (BEST FIRST)")
	for _, r := range rankings {
		sources := strings.Join(r.Sources, " > ")
		if len(r.Sources) == 0 {
			sources = emptyStyle.Render("not ranked yet")
		}
		t.Row(r.ID, sources)
	}
	return title + "\n" + t.Render()
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
