package sheets

import (
	"context"
	"fmt"
	"strings"

	gsheets "google.golang.org/api/sheets/v4"
)

// Tab is one worksheet. It implements ledger.Table.
type Tab struct {
	api  api
	id   string
	name string
}

func (t *Tab) rng() string {
	return "'" + strings.ReplaceAll(t.name, "'", "''") + "'"
}

func (t *Tab) Rows(ctx context.Context) ([][]string, error) {
	rows, err := t.api.get(ctx, t.id, t.rng())
	if err != nil {
		return nil, fmt.Errorf("reading tab %s: %w", t.name, err)
	}
	return rows, nil
}

func (t *Tab) Append(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := t.api.append(ctx, t.id, t.rng(), rows); err != nil {
		return fmt.Errorf("appending %d rows to tab %s: %w", len(rows), t.name, err)
	}
	return nil
}

func (t *Tab) Clear(ctx context.Context) error {
	if err := t.api.clear(ctx, t.id, t.rng()); err != nil {
		return fmt.Errorf("clearing tab %s: %w", t.name, err)
	}
	return nil
}

// service adapts *sheets.Service to api.
type service struct {
	svc *gsheets.Service
}

func (s *service) get(ctx context.Context, id, rng string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(id, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return toStrings(resp.Values), nil
}

func (s *service) append(ctx context.Context, id, rng string, rows [][]string) error {
	vr := &gsheets.ValueRange{Values: toValues(rows)}
	_, err := s.svc.Spreadsheets.Values.Append(id, rng, vr).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Context(ctx).
		Do()
	return err
}

func (s *service) clear(ctx context.Context, id, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(id, rng, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (s *service) meta(ctx context.Context, id string) (string, []string, error) {
	sp, err := s.svc.Spreadsheets.Get(id).Fields("properties.title", "sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return "", nil, err
	}
	tabs := make([]string, 0, len(sp.Sheets))
	for _, sh := range sp.Sheets {
		if sh.Properties != nil {
			tabs = append(tabs, sh.Properties.Title)
		}
	}
	title := ""
	if sp.Properties != nil {
		title = sp.Properties.Title
	}
	return title, tabs, nil
}

func toStrings(in [][]any) [][]string {
	out := make([][]string, len(in))
	for i, row := range in {
		line := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				line[j] = fmt.Sprint(v)
			}
		}
		out[i] = line
	}
	return out
}

func toValues(in [][]string) [][]any {
	out := make([][]any, len(in))
	for i, row := range in {
		line := make([]any, len(row))
		for j, v := range row {
			line[j] = v
		}
		out[i] = line
	}
	return out
}
