package survey

import (
	"database/sql"
	"fmt"
)

type ScanSummary struct {
	ID int64
	ScanRow
}

type RouteSummary struct {
	ID int64
	RouteRow
}

type CatalogRow struct {
	Digest   string
	LoadedAt string
}

func (s *Index) RecentScans(limit int) ([]ScanSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id,taken_at,agent,radius,blocks,digest FROM scans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanSummary
	for rows.Next() {
		var sc ScanSummary
		if err := rows.Scan(&sc.ID, &sc.TakenAt, &sc.Agent, &sc.Radius, &sc.Blocks, &sc.Digest); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Index) RecentRoutes(limit int) ([]RouteSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id,requested_at,agent,sx,sy,sz,tx,ty,tz,status,partial,waypoints,expanded,reason FROM routes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RouteSummary
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (s *Index) RouteByID(id int64) (RouteSummary, error) {
	row := s.db.QueryRow(`SELECT id,requested_at,agent,sx,sy,sz,tx,ty,tz,status,partial,waypoints,expanded,reason FROM routes WHERE id = ?`, id)
	rt, err := scanRoute(row)
	if err != nil {
		return RouteSummary{}, fmt.Errorf("route %d: %w", id, err)
	}
	return rt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(r rowScanner) (RouteSummary, error) {
	var rt RouteSummary
	var partial int
	var reason sql.NullString
	err := r.Scan(&rt.ID, &rt.RequestedAt, &rt.Agent,
		&rt.SX, &rt.SY, &rt.SZ,
		&rt.TX, &rt.TY, &rt.TZ,
		&rt.Status, &partial, &rt.Waypoints, &rt.Expanded, &reason)
	if err != nil {
		return RouteSummary{}, err
	}
	rt.Partial = partial != 0
	rt.Reason = reason.String
	return rt, nil
}

func (s *Index) Catalogs() ([]CatalogRow, error) {
	rows, err := s.db.Query(`SELECT digest,loaded_at FROM catalog ORDER BY loaded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogRow
	for rows.Next() {
		var c CatalogRow
		if err := rows.Scan(&c.Digest, &c.LoadedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
