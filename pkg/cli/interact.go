package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var tapCommand = &cli.Command{
	Name:      "tap",
	Usage:     "Tap an element by logical name or path expression",
	ArgsUsage: "<element>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Usage: "Number of taps",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "delay",
			Usage: "Delay between taps in milliseconds",
			Value: 0,
		},
	},
	Action: runTap,
}

var textCommand = &cli.Command{
	Name:      "text",
	Usage:     "Read or set an element's text",
	ArgsUsage: "<element>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "set",
			Usage: "Text to enter; omit to read instead",
		},
		&cli.BoolFlag{
			Name:  "append",
			Usage: "Append to existing text instead of clearing first",
		},
	},
	Action: runText,
}

var waitCommand = &cli.Command{
	Name:      "wait",
	Usage:     "Wait for an element to appear or disappear",
	ArgsUsage: "<element>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "gone",
			Usage: "Wait for the element to be absent or hidden",
		},
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "Deadline in milliseconds",
			Value: 10000,
		},
		&cli.StringFlag{
			Name:  "text",
			Usage: "Also require the element's text to contain this value",
		},
		&cli.BoolFlag{
			Name:  "ignore-case",
			Usage: "Case-insensitive text comparison",
		},
	},
	Action: runWait,
}

func elementArg(c *cli.Context) (string, error) {
	name := c.Args().First()
	if name == "" {
		return "", fmt.Errorf("an element name or path expression is required")
	}
	return name, nil
}

func runTap(c *cli.Context) error {
	name, err := elementArg(c)
	if err != nil {
		return err
	}
	app, err := setup(c)
	if err != nil {
		return err
	}
	index, err := app.resolveDevice(c)
	if err != nil {
		return err
	}
	defer app.close(index)

	count := c.Int("count")
	if count == 1 {
		return app.eng.TapElement(index, name)
	}
	return app.eng.TapElementRepeat(index, name, count, c.Int("delay"))
}

func runText(c *cli.Context) error {
	name, err := elementArg(c)
	if err != nil {
		return err
	}
	app, err := setup(c)
	if err != nil {
		return err
	}
	index, err := app.resolveDevice(c)
	if err != nil {
		return err
	}
	defer app.close(index)

	if c.IsSet("set") {
		return app.eng.SetElementText(index, name, c.String("set"), c.Bool("append"))
	}
	text, err := app.eng.GetElementText(index, name)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runWait(c *cli.Context) error {
	name, err := elementArg(c)
	if err != nil {
		return err
	}
	app, err := setup(c)
	if err != nil {
		return err
	}
	index, err := app.resolveDevice(c)
	if err != nil {
		return err
	}
	defer app.close(index)

	timeout := c.Int("timeout")
	if expected := c.String("text"); expected != "" {
		ok, text, err := app.eng.WaitForElementText(index, name, expected, c.Bool("ignore-case"), timeout)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("element %q did not show text %q within %dms", name, expected, timeout)
		}
		fmt.Println(text)
		return nil
	}

	ok, err := app.eng.WaitForElementPresence(index, name, !c.Bool("gone"), timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wait for element %q timed out after %dms", name, timeout)
	}
	return nil
}
