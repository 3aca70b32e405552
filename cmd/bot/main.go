package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelscout.ai/internal/gameapi"
	"voxelscout.ai/internal/nav/classify"
	"voxelscout.ai/internal/nav/route"
	"voxelscout.ai/internal/nav/voxel"
	"voxelscout.ai/internal/protocol"
	"voxelscout.ai/internal/tuning"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "status":
			statusCmd(os.Args[2:])
			return
		case "observe":
			observeCmd(os.Args[2:])
			return
		case "blocks":
			blocksCmd(os.Args[2:])
			return
		case "goto":
			gotoCmd(os.Args[2:])
			return
		case "stop":
			stopCmd(os.Args[2:])
			return
		case "say":
			sayCmd(os.Args[2:])
			return
		case "inbox":
			inboxCmd(os.Args[2:])
			return
		case "route":
			routeCmd(os.Args[2:])
			return
		case "watch":
			watchCmd(os.Args[2:])
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bot <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands: status observe blocks goto stop say inbox route watch")
}

func statusCmd(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	api := fs.String("api", gameapi.DefaultBase, "game bot API base url")
	_ = fs.Parse(args)

	st, err := gameapi.New(*api).Status(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "status:", err)
		os.Exit(1)
	}
	fmt.Printf("connected=%t player=%s pos=(%.1f,%.1f,%.1f) health=%.1f saturation=%.1f\n",
		st.Connected, st.Player, st.Pos.X, st.Pos.Y, st.Pos.Z, st.Health, st.Saturation)
}

func observeCmd(args []string) {
	fs := flag.NewFlagSet("observe", flag.ExitOnError)
	api := fs.String("api", gameapi.DefaultBase, "game bot API base url")
	_ = fs.Parse(args)

	obs, err := gameapi.New(*api).Observe(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "observe:", err)
		os.Exit(1)
	}
	fmt.Printf("pos=(%.2f,%.2f,%.2f) yaw=%.1f health=%.1f time_of_day=%.2f weather=%s\n",
		obs.Pos.X, obs.Pos.Y, obs.Pos.Z, obs.Yaw, obs.Health, obs.TimeOfDay, obs.Weather)
}

func blocksCmd(args []string) {
	fs := flag.NewFlagSet("blocks", flag.ExitOnError)
	api := fs.String("api", gameapi.DefaultBase, "game bot API base url")
	radius := fs.Int("radius", 8, "scan radius in cells")
	_ = fs.Parse(args)

	scan, err := gameapi.New(*api).Blocks(context.Background(), *radius)
	if err != nil {
		fmt.Fprintln(os.Stderr, "blocks:", err)
		os.Exit(1)
	}

	counts := map[string]int{}
	solid := 0
	for _, b := range scan {
		counts[b.Code]++
		if b.Solid {
			solid++
		}
	}
	codes := make([]string, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		fmt.Printf("%6d  %s\n", counts[c], c)
	}
	fmt.Printf("total=%d solid=%d radius=%d\n", len(scan), solid, *radius)
}

func gotoCmd(args []string) {
	fs := flag.NewFlagSet("goto", flag.ExitOnError)
	api := fs.String("api", gameapi.DefaultBase, "game bot API base url")
	x := fs.Int("x", 0, "target x")
	y := fs.Int("y", 0, "target y")
	z := fs.Int("z", 0, "target z")
	wait := fs.Bool("wait", false, "poll movement status until the task ends")
	timeout := fs.Duration("timeout", 60*time.Second, "arrival timeout when waiting")
	_ = fs.Parse(args)

	ctx := context.Background()
	client := gameapi.New(*api)
	if err := client.Goto(ctx, *x, *y, *z); err != nil {
		fmt.Fprintln(os.Stderr, "goto:", err)
		os.Exit(1)
	}
	fmt.Printf("goto (%d,%d,%d) accepted\n", *x, *y, *z)

	if !*wait {
		return
	}
	state, err := waitArrival(ctx, client, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wait:", err)
		os.Exit(1)
	}
	fmt.Println(state)
	if state == protocol.StateStuck {
		os.Exit(1)
	}
}

func stopCmd(args []string) {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	api := fs.String("api", gameapi.DefaultBase, "game bot API base url")
	_ = fs.Parse(args)

	if err := gameapi.New(*api).Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
		os.Exit(1)
	}
	fmt.Println("stopped")
}

func sayCmd(args []string) {
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	api := fs.String("api", gameapi.DefaultBase, "game bot API base url")
	message := fs.String("m", "", "chat message (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*message) == "" {
		fmt.Fprintln(os.Stderr, "missing -m")
		os.Exit(2)
	}
	if err := gameapi.New(*api).Say(context.Background(), *message); err != nil {
		fmt.Fprintln(os.Stderr, "say:", err)
		os.Exit(1)
	}
	fmt.Println("sent")
}

func inboxCmd(args []string) {
	fs := flag.NewFlagSet("inbox", flag.ExitOnError)
	api := fs.String("api", gameapi.DefaultBase, "game bot API base url")
	_ = fs.Parse(args)

	lines, err := gameapi.New(*api).Inbox(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "inbox:", err)
		os.Exit(1)
	}
	if len(lines) == 0 {
		fmt.Println("inbox empty")
		return
	}
	for _, ln := range lines {
		if ln.At != "" {
			fmt.Printf("[%s] %s: %s\n", ln.At, ln.From, ln.Message)
		} else {
			fmt.Printf("%s: %s\n", ln.From, ln.Message)
		}
	}
}

func routeCmd(args []string) {
	fs := flag.NewFlagSet("route", flag.ExitOnError)
	api := fs.String("api", gameapi.DefaultBase, "game bot API base url")
	configDir := fs.String("configs", "./configs", "config directory")
	x := fs.Int("x", 0, "target x")
	y := fs.Int("y", 0, "target y")
	z := fs.Int("z", 0, "target z")
	radius := fs.Int("radius", 0, "scan radius (default: tuning scan_radius)")
	allowHazards := fs.Bool("allow_hazards", false, "permit stepping on hazardous blocks")
	drive := fs.Bool("drive", false, "walk the route waypoint by waypoint")
	timeout := fs.Duration("timeout", 30*time.Second, "per-waypoint arrival timeout when driving")
	_ = fs.Parse(args)

	table, tune := loadNavConfig(*configDir)
	if *radius <= 0 {
		*radius = tune.ScanRadius
	}

	ctx := context.Background()
	client := gameapi.New(*api)

	obs, err := client.Observe(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "observe:", err)
		os.Exit(1)
	}
	scan, err := client.Blocks(ctx, *radius)
	if err != nil {
		fmt.Fprintln(os.Stderr, "blocks:", err)
		os.Exit(1)
	}

	start := voxel.CellOf(voxel.Point{X: obs.Pos.X, Y: obs.Pos.Y, Z: obs.Pos.Z})
	target := voxel.Pos{X: *x, Y: *y, Z: *z}
	prof := tune.Nav.Profile()
	if *allowHazards {
		prof.AllowHazards = true
	}

	res := route.Find(route.Request{
		Start:   start,
		Target:  target,
		Scan:    scan,
		Table:   table,
		Profile: prof,
		Budget:  tune.Nav.Budget(),
		Costs:   tune.Nav.Costs(),
	})
	if res.Code != "" {
		fmt.Fprintf(os.Stderr, "route failed: %s (%s)\n", res.Code, res.Reason)
		os.Exit(1)
	}

	for i, wp := range res.Waypoints {
		fmt.Printf("%3d  %s\n", i+1, wp)
	}
	note := ""
	if res.Partial {
		note = " partial: " + res.Reason
	}
	fmt.Printf("route %s -> %s: %d waypoints distance=%.1f expanded=%d%s\n",
		start, target, len(res.Waypoints), res.Distance, res.Stats.Expanded, note)

	if !*drive {
		return
	}

	hops := res.Waypoints
	if len(hops) > 0 && hops[0] == start {
		hops = hops[1:]
	}
	for i, wp := range hops {
		if err := client.Goto(ctx, wp.X, wp.Y, wp.Z); err != nil {
			fmt.Fprintf(os.Stderr, "goto waypoint %d: %v\n", i+1, err)
			os.Exit(1)
		}
		state, err := waitArrival(ctx, client, *timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "waypoint %d/%d: %v\n", i+1, len(hops), err)
			os.Exit(1)
		}
		if state == protocol.StateStuck {
			fmt.Fprintf(os.Stderr, "stuck at waypoint %d/%d %s\n", i+1, len(hops), wp)
			os.Exit(1)
		}
		fmt.Printf("waypoint %d/%d %s %s\n", i+1, len(hops), state, wp)
	}
	fmt.Println("arrived")
}

func watchCmd(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	url := fs.String("url", "ws://127.0.0.1:4561/v1/watch", "scout watch stream url")
	_ = fs.Parse(args)

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeHello:
			var h protocol.HelloFrame
			if err := json.Unmarshal(msg, &h); err != nil {
				continue
			}
			logger.Printf("HELLO agent=%s protocol=%s started=%s", h.Agent, h.ProtocolVersion, h.Started)

		case protocol.TypeState:
			var st protocol.StateFrame
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if st.Target != nil {
				logger.Printf("STATE seq=%d %s pos=(%.1f,%.1f,%.1f) target=(%d,%d,%d) queue=%d",
					st.Seq, st.State, st.Pos.X, st.Pos.Y, st.Pos.Z, st.Target.X, st.Target.Y, st.Target.Z, st.QueueLen)
			} else {
				logger.Printf("STATE seq=%d %s pos=(%.1f,%.1f,%.1f)", st.Seq, st.State, st.Pos.X, st.Pos.Y, st.Pos.Z)
			}

		case protocol.TypeRoute:
			var rt protocol.RouteFrame
			if err := json.Unmarshal(msg, &rt); err != nil {
				continue
			}
			if rt.Code != "" {
				logger.Printf("ROUTE seq=%d (%d,%d,%d)->(%d,%d,%d) %s: %s",
					rt.Seq, rt.Start.X, rt.Start.Y, rt.Start.Z, rt.Target.X, rt.Target.Y, rt.Target.Z, rt.Code, rt.Reason)
			} else {
				logger.Printf("ROUTE seq=%d (%d,%d,%d)->(%d,%d,%d) waypoints=%d distance=%.1f partial=%t",
					rt.Seq, rt.Start.X, rt.Start.Y, rt.Start.Z, rt.Target.X, rt.Target.Y, rt.Target.Z, len(rt.Waypoints), rt.Distance, rt.Partial)
			}

		case protocol.TypeScan:
			var sc protocol.ScanFrame
			if err := json.Unmarshal(msg, &sc); err != nil {
				continue
			}
			logger.Printf("SCAN seq=%d radius=%d blocks=%d digest=%s", sc.Seq, sc.Radius, sc.Count, shortDigest(sc.Digest))
		}
	}
}

// waitArrival polls movement status until the current goto task ends. A
// reached or stuck report counts immediately; idle and no_task only count
// after motion was observed, so a not-yet-started task is not mistaken for
// a finished one.
func waitArrival(ctx context.Context, client *gameapi.Client, timeout time.Duration) (string, error) {
	// Give the game a beat to accept the command before polling.
	time.Sleep(150 * time.Millisecond)

	deadline := time.Now().Add(timeout)
	sawMoving := false
	for time.Now().Before(deadline) {
		mv, err := client.MovementStatus(ctx)
		if err != nil {
			return "", err
		}
		switch {
		case mv.State == protocol.StateMoving:
			sawMoving = true
		case mv.State == protocol.StateReached, mv.State == protocol.StateStuck:
			return mv.State, nil
		case sawMoving && protocol.TerminalState(mv.State):
			return mv.State, nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return "", fmt.Errorf("no arrival within %s", timeout)
}

func loadNavConfig(configDir string) (classify.Table, tuning.Tuning) {
	table, err := classify.Load(configDir)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load block catalog:", err)
			os.Exit(1)
		}
		table = classify.DefaultTable()
	}
	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	return table, tune
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
