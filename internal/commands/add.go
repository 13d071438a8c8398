package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/service"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	image string
	lat   float64
	lon   float64
	set   map[string]bool
}

// SetImage sets the image reference (for testing).
func (c *AddCmd) SetImage(ref string) {
	c.image = ref
}

// SetLocation sets the coordinates (for testing).
func (c *AddCmd) SetLocation(lat, lon float64) {
	c.lat, c.lon = lat, lon
	c.set = map[string]bool{"lat": true, "lon": true}
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "todo add [--image <path|url>] [--lat <deg> --lon <deg>] <title...>"
}
func (c *AddCmd) NeedsAuth() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	c.set = make(map[string]bool)
	fs.StringVar(&c.image, "image", "", "")
	fs.Func("lat", "", func(s string) error { return c.coord("lat", s, &c.lat) })
	fs.Func("lon", "", func(s string) error { return c.coord("lon", s, &c.lon) })
}

func (c *AddCmd) coord(name, s string, dst *float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("invalid number: %s", s)
	}
	*dst = v
	c.set[name] = true
	return nil
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}

	loc, err := c.location()
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	task, err := rt.Tasks.AddTask(ctx, title, c.image, loc)
	if err != nil {
		return fail(errOut, err)
	}
	rt.Logger.Debug("created task", "id", task.ID)
	return ok(cfg, out)
}

// location returns the coordinates when both were given.
func (c *AddCmd) location() (*service.Location, error) {
	switch {
	case !c.set["lat"] && !c.set["lon"]:
		return nil, nil
	case c.set["lat"] != c.set["lon"]:
		return nil, fmt.Errorf("--lat and --lon must be given together")
	case c.lat < -90 || c.lat > 90:
		return nil, fmt.Errorf("latitude out of range: %g", c.lat)
	case c.lon < -180 || c.lon > 180:
		return nil, fmt.Errorf("longitude out of range: %g", c.lon)
	}
	return &service.Location{Latitude: c.lat, Longitude: c.lon}, nil
}
