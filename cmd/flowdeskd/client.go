package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// apiCall hits the admin API and decodes the JSON response into out.
func apiCall(method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	url := strings.TrimRight(flagAddr, "/") + path
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if flagToken != "" {
		req.Header.Set("Authorization", "Bearer "+flagToken)
	}
	cl := &http.Client{Timeout: 15 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil {
			switch {
			case apiErr.Detail != "":
				return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Detail, resp.Status)
			case apiErr.Error != "":
				return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error, resp.Status)
			}
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st struct {
				Version          string    `json:"version"`
				StartedAt        time.Time `json:"started_at"`
				SchedulerEnabled bool      `json:"scheduler_enabled"`
				SchedulerRunning bool      `json:"scheduler_running"`
				Timezone         string    `json:"timezone"`
				Workers          int       `json:"workers"`
				Jobs             int       `json:"jobs"`
				QueueDepth       int       `json:"queue_depth"`
			}
			if err := apiCall(http.MethodGet, "/v1/status", nil, &st); err != nil {
				return err
			}
			tw := newTable()
			tw.AppendRow(table.Row{"Version", st.Version})
			tw.AppendRow(table.Row{"Started", st.StartedAt.Local().Format(time.RFC3339)})
			tw.AppendRow(table.Row{"Uptime", time.Since(st.StartedAt).Round(time.Second)})
			tw.AppendRow(table.Row{"Scheduler", schedulerState(st.SchedulerEnabled, st.SchedulerRunning)})
			tw.AppendRow(table.Row{"Timezone", st.Timezone})
			tw.AppendRow(table.Row{"Workers", st.Workers})
			tw.AppendRow(table.Row{"Jobs", st.Jobs})
			tw.AppendRow(table.Row{"Queue depth", st.QueueDepth})
			tw.Render()
			return nil
		},
	}
}

func schedulerState(enabled, running bool) string {
	switch {
	case !enabled:
		return "disabled"
	case running:
		return "running"
	default:
		return "stopped"
	}
}

func jobsCmd() *cobra.Command {
	var showHistory bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Jobs []struct {
					Name    string     `json:"name"`
					Spec    string     `json:"spec"`
					Timeout string     `json:"timeout"`
					Next    *time.Time `json:"next"`
					Prev    *time.Time `json:"prev"`
				} `json:"jobs"`
				History []struct {
					Name     string    `json:"name"`
					Started  time.Time `json:"started"`
					Duration string    `json:"duration"`
					Error    string    `json:"error"`
				} `json:"history"`
			}
			if err := apiCall(http.MethodGet, "/v1/jobs", nil, &out); err != nil {
				return err
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Name", "Schedule", "Timeout", "Next", "Last"})
			for _, j := range out.Jobs {
				tw.AppendRow(table.Row{j.Name, j.Spec, j.Timeout, fmtAt(j.Next), fmtAt(j.Prev)})
			}
			tw.Render()

			if showHistory && len(out.History) > 0 {
				fmt.Println()
				hw := newTable()
				hw.AppendHeader(table.Row{"Name", "Started", "Duration", "Error"})
				for _, h := range out.History {
					hw.AppendRow(table.Row{h.Name, h.Started.Local().Format("2006-01-02 15:04:05"), h.Duration, h.Error})
				}
				hw.Render()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showHistory, "history", false, "also print recent run history")
	return cmd
}

func fmtAt(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <job>",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Triggered string `json:"triggered"`
			}
			if err := apiCall(http.MethodPost, "/v1/jobs/"+args[0]+"/run", nil, &out); err != nil {
				return err
			}
			fmt.Println("triggered", out.Triggered)
			return nil
		},
	}
}

func rescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <job> <schedule>",
		Short: "Change a job's schedule (cron, @every, duration, or HH:MM)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"schedule": args[1]}
			var out struct {
				Name     string `json:"name"`
				Schedule string `json:"schedule"`
			}
			if err := apiCall(http.MethodPost, "/v1/jobs/"+args[0]+"/reschedule", body, &out); err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", out.Name, out.Schedule)
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job>",
		Short: "Remove a job from the schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Removed bool `json:"removed"`
			}
			if err := apiCall(http.MethodDelete, "/v1/jobs/"+args[0], nil, &out); err != nil {
				return err
			}
			if !out.Removed {
				fmt.Println("no such job:", args[0])
				return nil
			}
			fmt.Println("removed", args[0])
			return nil
		},
	}
}
