package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/moffa90/go-snor/flash"
	"github.com/moffa90/go-snor/flashprog"
	"github.com/moffa90/go-snor/image"
	"github.com/moffa90/go-snor/jesd216"
	"github.com/moffa90/go-snor/logging"
	"github.com/spf13/cobra"
)

// withSession opens a session for the duration of fn.
func withSession(g *globalFlags, fn func(cmd *cobra.Command, args []string, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		s, err := openSession(g)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args, s)
	}
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the device identity and geometry",
		Args:  cobra.NoArgs,
		RunE: withSession(g, func(cmd *cobra.Command, _ []string, s *session) error {
			w := cmd.OutOrStdout()
			id := s.drv.Identity()
			desc := s.drv.Descriptor()

			fmt.Fprintf(w, "identity:     %s\n", id)
			fmt.Fprintf(w, "manufacturer: 0x%02X\n", id.Manufacturer())
			fmt.Fprintf(w, "memory type:  0x%02X\n", id.MemoryType())
			fmt.Fprintf(w, "capacity:     0x%02X (%d bytes)\n", id.Capacity(), desc.Size())
			fmt.Fprintf(w, "sectors:      %d x %d bytes\n", desc.SectorsCount, desc.SectorSize)
			fmt.Fprintf(w, "page size:    %d bytes\n", desc.PageSize)
			fmt.Fprintf(w, "erased value: 0x%02X\n", desc.ErasedValue())
			fmt.Fprintf(w, "mappable:     %v\n", desc.Attributes.Has(flash.AttrMemoryMapped))
			return nil
		}),
	}
}

func newReadCmd(g *globalFlags) *cobra.Command {
	var offsetStr, lengthStr, out string

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read flash contents to a file or as a hex dump",
		Args:  cobra.NoArgs,
		RunE: withSession(g, func(cmd *cobra.Command, _ []string, s *session) (err error) {
			offset, err := parseUint32("offset", offsetStr)
			if err != nil {
				return err
			}
			size := s.drv.Descriptor().Size()
			if uint64(offset) > size {
				return fmt.Errorf("--offset 0x%X beyond device size %d", offset, size)
			}

			length := size - uint64(offset)
			if lengthStr != "" {
				n, err := parseUint32("length", lengthStr)
				if err != nil {
					return err
				}
				length = uint64(n)
			}

			var w io.Writer
			if out == "" {
				dumper := hex.Dumper(cmd.OutOrStdout())
				defer dumper.Close()
				w = dumper
			} else {
				f, ferr := os.Create(out)
				if ferr != nil {
					return ferr
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = cerr
					}
				}()
				w = f
			}

			prog := flashprog.New(s.drv,
				flashprog.WithLogger(logging.Zap(s.log.Sugar())),
				flashprog.WithChunkSize(4096),
			)
			return prog.Dump(cmd.Context(), w, offset, int(length))
		}),
	}

	cmd.Flags().StringVar(&offsetStr, "offset", "0", "start offset")
	cmd.Flags().StringVar(&lengthStr, "length", "", "number of bytes (default: to the end of the device)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: hex dump to stdout)")
	return cmd
}

func newEraseCmd(g *globalFlags) *cobra.Command {
	var sectorStr string
	var all bool

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase one sector or the whole device",
		Args:  cobra.NoArgs,
		RunE: withSession(g, func(cmd *cobra.Command, _ []string, s *session) error {
			if all == (sectorStr != "") {
				return errors.New("exactly one of --sector or --all is required")
			}

			if all {
				if err := flash.EraseAll(cmd.Context(), s.drv); err != nil {
					return fmt.Errorf("erase all: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "device erased")
				return nil
			}

			sector, err := parseUint32("sector", sectorStr)
			if err != nil {
				return err
			}
			if count := s.drv.Descriptor().SectorsCount; sector >= count {
				return fmt.Errorf("--sector %d out of range (count %d)", sector, count)
			}
			if err := flash.EraseSector(cmd.Context(), s.drv, sector); err != nil {
				return fmt.Errorf("erase sector %d: %w", sector, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sector %d erased\n", sector)
			return nil
		}),
	}

	cmd.Flags().StringVar(&sectorStr, "sector", "", "sector number to erase")
	cmd.Flags().BoolVar(&all, "all", false, "erase the whole device")
	return cmd
}

func newProgramCmd(g *globalFlags) *cobra.Command {
	var (
		baseStr    string
		chunkSize  int
		eraseAll   bool
		blankCheck bool
		verify     bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "program <image>",
		Short: "Program an Intel HEX or raw binary image",
		Long:  "Erase the sectors an image touches, program it and read it back. Files ending in .hex, .ihex or .ihx are Intel HEX; anything else is raw binary placed at --base.",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(g, func(cmd *cobra.Command, args []string, s *session) error {
			base, err := parseUint32("base", baseStr)
			if err != nil {
				return err
			}
			img, err := image.Load(args[0], base)
			if err != nil {
				return err
			}

			opts := []flashprog.Option{
				flashprog.WithLogger(logging.Zap(s.log.Sugar())),
				flashprog.WithChunkSize(chunkSize),
				flashprog.WithEraseAll(eraseAll),
				flashprog.WithBlankCheck(blankCheck),
				flashprog.WithVerifyAfterProgram(verify),
			}
			if !quiet {
				stderr := cmd.ErrOrStderr()
				opts = append(opts, flashprog.WithProgressCallback(func(p flashprog.Progress) {
					fmt.Fprintf(stderr, "\r[%-11s] %5.1f%%", p.Phase, p.Percentage)
					if p.Phase == flashprog.PhaseComplete {
						fmt.Fprintln(stderr)
					}
				}))
			}

			if err := flashprog.New(s.drv, opts...).Program(cmd.Context(), img); err != nil {
				return err
			}

			start, end := img.Span()
			fmt.Fprintf(cmd.OutOrStdout(), "programmed %d bytes in %d segments (0x%08X-0x%08X)\n",
				img.Size(), len(img.Segments), start, end)
			if img.HasEntry {
				fmt.Fprintf(cmd.OutOrStdout(), "entry point 0x%08X\n", img.Entry)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&baseStr, "base", "0", "flash offset of raw binary images, or offset added to HEX addresses")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", flashprog.DefaultChunkSize, "bytes per program call")
	cmd.Flags().BoolVar(&eraseAll, "erase-all", false, "erase the whole device instead of the touched sectors")
	cmd.Flags().BoolVar(&blankCheck, "blank-check", false, "check erased sectors before programming")
	cmd.Flags().BoolVar(&verify, "verify", true, "read back and compare after programming")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func newVerifyEraseCmd(g *globalFlags) *cobra.Command {
	var sectorStr string

	cmd := &cobra.Command{
		Use:   "verify-erase",
		Short: "Check that a sector, or every sector, reads as erased",
		Args:  cobra.NoArgs,
		RunE: withSession(g, func(cmd *cobra.Command, _ []string, s *session) error {
			desc := s.drv.Descriptor()
			first, last := uint32(0), desc.SectorsCount-1
			if sectorStr != "" {
				sector, err := parseUint32("sector", sectorStr)
				if err != nil {
					return err
				}
				if sector >= desc.SectorsCount {
					return fmt.Errorf("--sector %d out of range (count %d)", sector, desc.SectorsCount)
				}
				first, last = sector, sector
			}

			w := cmd.OutOrStdout()
			failed := 0
			for sector := first; sector <= last; sector++ {
				if err := cmd.Context().Err(); err != nil {
					return err
				}

				err := s.drv.VerifyErase(sector)
				var verr *flash.VerifyError
				switch {
				case err == nil:
				case errors.As(err, &verr):
					failed++
					fmt.Fprintf(w, "sector %d: not erased at 0x%08X (0x%02X)\n", sector, verr.Offset, verr.Value)
				default:
					return fmt.Errorf("sector %d: %w", sector, err)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d sectors not erased", failed, last-first+1)
			}
			fmt.Fprintf(w, "%d sectors erased\n", last-first+1)
			return nil
		}),
	}

	cmd.Flags().StringVar(&sectorStr, "sector", "", "sector to check (default: all)")
	return cmd
}

func newSFDPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sfdp",
		Short: "Print the serial flash discoverable parameters",
		Args:  cobra.NoArgs,
		RunE: withSession(g, func(cmd *cobra.Command, _ []string, s *session) error {
			sfdp, err := s.drv.SFDP()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "SFDP revision %d.%d\n", sfdp.MajorRev, sfdp.MinorRev)
			for _, p := range sfdp.Parameters {
				fmt.Fprintf(w, "  table 0x%04X rev %d.%d at 0x%06X, %d dwords\n",
					p.ID, p.MajorRev, p.MinorRev, p.Pointer, len(p.Table))
			}

			if density, err := sfdp.Density(); err == nil {
				fmt.Fprintf(w, "density: %d bytes\n", density)
			}
			if op, err := sfdp.Erase4KOpcode(); err == nil {
				fmt.Fprintf(w, "4 KiB erase opcode: 0x%02X\n", op)
			}
			if _, err := sfdp.Dword(jesd216.SFDPBasicTableID, 0); err != nil {
				fmt.Fprintf(w, "no basic flash parameter table: %v\n", err)
			}
			return nil
		}),
	}
}
