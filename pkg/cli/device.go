package cli

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/uibridge/pkg/mapping"
)

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List configured devices",
	Description: `List every device section parsed from the device configuration file
with its platform and server endpoint.`,
	Action: runDevices,
}

var screenshotCommand = &cli.Command{
	Name:  "screenshot",
	Usage: "Capture the device screen as PNG",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output file path (default: generated name in the screenshot dir)",
		},
	},
	Action: runScreenshot,
}

var mapCommand = &cli.Command{
	Name:  "map",
	Usage: "Print the device's element mapping table",
	Description: `Print the raw logical-name to expression mapping file configured for
the device.`,
	Action: runMap,
}

var hierarchyCommand = &cli.Command{
	Name:   "hierarchy",
	Usage:  "Print the device's current UI tree as XML",
	Action: runHierarchy,
}

func runDevices(c *cli.Context) error {
	app, err := setup(c)
	if err != nil {
		return err
	}
	reg := app.eng.Registry()
	indices := reg.Indices()
	if len(indices) == 0 {
		fmt.Println("No devices configured.")
		return nil
	}
	for _, index := range indices {
		dev, _ := reg.Get(index)
		fmt.Printf("Device %d: platform=%s server=%s mapping=%s\n",
			index, dev.Platform, dev.ServerURL, dev.MappingPath)
	}
	return nil
}

func runScreenshot(c *cli.Context) error {
	app, err := setup(c)
	if err != nil {
		return err
	}
	index, err := app.resolveDevice(c)
	if err != nil {
		return err
	}
	defer app.close(index)

	path := c.String("output")
	if path == "" {
		path = filepath.Join(app.cfg.ScreenshotDir, uuid.NewString()+".png")
	}
	if err := app.eng.TakeScreenshot(index, path); err != nil {
		return err
	}
	fmt.Printf("Screenshot saved to %s\n", path)
	return nil
}

func runMap(c *cli.Context) error {
	app, err := setup(c)
	if err != nil {
		return err
	}
	index := c.Int("device")
	if index < 0 {
		index = app.cfg.DefaultDevice
	}
	// The mapping table is readable without opening a session.
	path, err := app.eng.Registry().MappingPath(index)
	if err != nil {
		return err
	}
	contents, err := mapping.Dump(path)
	if err != nil {
		return err
	}
	fmt.Print(contents)
	return nil
}

func runHierarchy(c *cli.Context) error {
	app, err := setup(c)
	if err != nil {
		return err
	}
	index, err := app.resolveDevice(c)
	if err != nil {
		return err
	}
	defer app.close(index)

	conn, err := app.eng.Registry().Conn(index)
	if err != nil {
		return err
	}
	source, err := conn.Source()
	if err != nil {
		return err
	}
	fmt.Println(source)
	return nil
}
