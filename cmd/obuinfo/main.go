// Package main is the obuinfo command: it lists the OBUs of an AV1 stream and the headers they carry.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/m4tthewde/obu"
)

const (
	flagAnnexB = "annexb"
	flagDebug  = "debug"
)

func main() {
	var logger *zap.Logger

	app := &cli.App{
		Name:      "obuinfo",
		Usage:     "list the OBUs of an AV1 still picture stream",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagAnnexB,
				Usage: "read length delimited (Annex B) framing",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if !c.Bool(flagDebug) {
				logger = zap.NewNop()
				return nil
			}
			var err error
			logger, err = zap.NewDevelopment()
			return errors.Wrap(err, "creating logger")
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one FILE argument")
			}
			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return errors.Wrap(err, "reading stream")
			}

			out, err := inspect(data, c.Bool(flagAnnexB), logger)
			fmt.Fprint(c.App.Writer, out)
			return err
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// inspect decodes data and renders whatever was parsed, even when decoding stopped early.
func inspect(data []byte, annexB bool, logger *zap.Logger) (string, error) {
	tiles := &tileRecorder{}
	decoder := obu.NewDecoder(tiles, obu.WithAnnexB(annexB), obu.WithLogger(logger))
	session := obu.NewSession()

	result, err := decoder.Decode(session, data)
	out := renderOBUs(result) + "\n" + renderHeaders(session) + "\n" + renderTiles(tiles)
	return out, errors.Wrap(err, "decoding stream")
}
