package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"voxelscout.ai/internal/survey"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "scans":
			scansCmd(os.Args[2:])
			return
		case "routes":
			routesCmd(os.Args[2:])
			return
		case "route":
			routeCmd(os.Args[2:])
			return
		case "catalog":
			catalogCmd(os.Args[2:])
			return
		case "session":
			sessionCmd(os.Args[2:])
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands: scans routes route catalog session")
}

func scansCmd(args []string) {
	fs := flag.NewFlagSet("scans", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("n", 20, "max rows")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir)
	defer idx.Close()

	scans, err := idx.RecentScans(*limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scans:", err)
		os.Exit(1)
	}
	if len(scans) == 0 {
		fmt.Println("no scans recorded")
		return
	}
	for _, sc := range scans {
		fmt.Printf("%-5d %s agent=%s radius=%d blocks=%d digest=%s\n",
			sc.ID, sc.TakenAt, sc.Agent, sc.Radius, sc.Blocks, shortDigest(sc.Digest))
	}
}

func routesCmd(args []string) {
	fs := flag.NewFlagSet("routes", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("n", 20, "max rows")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir)
	defer idx.Close()

	routes, err := idx.RecentRoutes(*limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "routes:", err)
		os.Exit(1)
	}
	if len(routes) == 0 {
		fmt.Println("no routes recorded")
		return
	}
	for _, rt := range routes {
		fmt.Printf("%-5d %s agent=%s (%d,%d,%d)->(%d,%d,%d) %s waypoints=%d expanded=%d\n",
			rt.ID, rt.RequestedAt, rt.Agent,
			rt.SX, rt.SY, rt.SZ, rt.TX, rt.TY, rt.TZ,
			statusWord(rt.Status, rt.Partial), rt.Waypoints, rt.Expanded)
	}
}

func routeCmd(args []string) {
	fs := flag.NewFlagSet("route", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	id := fs.Int64("id", 0, "route id (required)")
	_ = fs.Parse(args)

	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}

	idx := openIndex(*dataDir)
	defer idx.Close()

	rt, err := idx.RouteByID(*id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "route:", err)
		os.Exit(1)
	}
	fmt.Printf("route %d\n", rt.ID)
	fmt.Printf("  requested_at  %s\n", rt.RequestedAt)
	fmt.Printf("  agent         %s\n", rt.Agent)
	fmt.Printf("  start         (%d,%d,%d)\n", rt.SX, rt.SY, rt.SZ)
	fmt.Printf("  target        (%d,%d,%d)\n", rt.TX, rt.TY, rt.TZ)
	fmt.Printf("  status        %s\n", statusWord(rt.Status, rt.Partial))
	fmt.Printf("  waypoints     %d\n", rt.Waypoints)
	fmt.Printf("  expanded      %d\n", rt.Expanded)
	if rt.Reason != "" {
		fmt.Printf("  reason        %s\n", rt.Reason)
	}
}

func catalogCmd(args []string) {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir)
	defer idx.Close()

	cats, err := idx.Catalogs()
	if err != nil {
		fmt.Fprintln(os.Stderr, "catalog:", err)
		os.Exit(1)
	}
	if len(cats) == 0 {
		fmt.Println("no catalogs recorded")
		return
	}
	for _, c := range cats {
		fmt.Printf("%s loaded_at=%s\n", c.Digest, c.LoadedAt)
	}
}

func sessionCmd(args []string) {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	full := fs.Bool("full", false, "print counters, last scan and recent routes")
	_ = fs.Parse(args)

	path := filepath.Join(*dataDir, "session.snap.zst")
	if !*full {
		h, err := survey.PeekSessionHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "session:", err)
			os.Exit(1)
		}
		fmt.Printf("session v%d agent=%s saved_at=%s\n", h.Version, h.Agent, h.SavedAt)
		return
	}

	s, err := survey.ReadSession(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "session:", err)
		os.Exit(1)
	}
	fmt.Printf("session v%d agent=%s saved_at=%s\n", s.Header.Version, s.Header.Agent, s.Header.SavedAt)
	fmt.Printf("catalog %s\n", shortDigest(s.CatalogDigest))
	fmt.Printf("counters scans=%d routes=%d routes_failed=%d gotos=%d poll_ticks=%d\n",
		s.Counters.Scans, s.Counters.Routes, s.Counters.RoutesFailed, s.Counters.Gotos, s.Counters.PollTicks)
	if s.LastScan != nil {
		fmt.Printf("last scan %s origin=(%d,%d,%d) radius=%d blocks=%d digest=%s\n",
			s.LastScan.TakenAt,
			s.LastScan.Origin[0], s.LastScan.Origin[1], s.LastScan.Origin[2],
			s.LastScan.Radius, len(s.LastScan.Blocks), shortDigest(s.LastScan.Digest))
	}
	for _, rt := range s.Routes {
		fmt.Printf("route %s (%d,%d,%d)->(%d,%d,%d) %s waypoints=%d expanded=%d\n",
			rt.RequestedAt,
			rt.Start[0], rt.Start[1], rt.Start[2],
			rt.Target[0], rt.Target[1], rt.Target[2],
			statusWord(rt.Code, rt.Partial), rt.Waypoints, rt.Expanded)
	}
}

func openIndex(dataDir string) *survey.Index {
	path := filepath.Join(dataDir, "survey.db")
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "no survey index at", path)
		os.Exit(1)
	}
	idx, err := survey.OpenIndex(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open survey index:", err)
		os.Exit(1)
	}
	return idx
}

func statusWord(code string, partial bool) string {
	if code != "" {
		return code
	}
	if partial {
		return "partial"
	}
	return "ok"
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
