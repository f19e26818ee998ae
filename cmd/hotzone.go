package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/achilleasa/rtstack/hotzone"
	"github.com/urfave/cli"
)

// Encode a hot zone record and print its bytes.
func EncodeHotZone(ctx *cli.Context) error {
	setupLogging(ctx)

	variant, err := hotzone.ParseVariant(ctx.String("variant"))
	if err != nil {
		return err
	}
	if ctx.NArg() != 3 {
		return errors.New("expected x, y and z dispatch index arguments")
	}

	rec := hotzone.Record{
		StackOffset: uint32(ctx.Uint("stack-offset")),
		Done:        ctx.Bool("done"),
	}
	for dim := 0; dim < 3; dim++ {
		v, err := strconv.ParseUint(ctx.Args().Get(dim), 0, 32)
		if err != nil {
			return fmt.Errorf("dispatch index %d: %v", dim, err)
		}
		rec.DispatchIndex[dim] = uint32(v)
	}

	buf := make([]byte, hotzone.RecordSize)
	if err = hotzone.Encode(variant, rec, buf); err != nil {
		return err
	}

	logger.Noticef("%s record: % x", variant, buf)
	logger.Infof("decoded: %+v", hotzone.Decode(variant, buf))
	return nil
}

// Decode a hex encoded hot zone record.
func DecodeHotZone(ctx *cli.Context) error {
	setupLogging(ctx)

	variant, err := hotzone.ParseVariant(ctx.String("variant"))
	if err != nil {
		return err
	}
	if ctx.NArg() != 1 {
		return errors.New("missing hex encoded record argument")
	}

	buf, err := hex.DecodeString(ctx.Args().First())
	if err != nil {
		return err
	}
	if len(buf) < hotzone.RecordSize {
		return fmt.Errorf("expected %d bytes; got %d", hotzone.RecordSize, len(buf))
	}

	rec := hotzone.Decode(variant, buf)
	logger.Noticef("%s record: stack offset %d, dispatch index (%d, %d, %d), done %t",
		variant, rec.StackOffset, rec.DispatchIndex[0], rec.DispatchIndex[1], rec.DispatchIndex[2], rec.Done)
	return nil
}
