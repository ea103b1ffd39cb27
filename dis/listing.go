package dis

import (
	"fmt"
	"io"
)

// Disassemble writes a text listing of img to w.
func Disassemble(w io.Writer, img *Image, names Names) error {
	if _, err := fmt.Fprintf(w, "version %s\nentry   %s\n", img.Version, names.Name(img.Entry)); err != nil {
		return err
	}
	for _, fn := range img.Functions {
		if err := writeFunction(w, fn, names); err != nil {
			return err
		}
	}
	return nil
}

// DisassembleObject writes a text listing of a single function to w.
func DisassembleObject(w io.Writer, fn *Function, names Names) error {
	return writeFunction(w, fn, names)
}

func writeFunction(w io.Writer, fn *Function, names Names) error {
	if _, err := fmt.Fprintf(w, "\n%s\n", fn.Signature(names)); err != nil {
		return err
	}
	for _, line := range fn.Lines(names) {
		if _, err := fmt.Fprintf(w, "    %s\n", line); err != nil {
			return err
		}
	}
	return nil
}
