//go:build windows

package ptyexpect

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// conPty is a Windows pseudo console with the host ends of its two pipes.
type conPty struct {
	hpc      windows.Handle
	in       *os.File // host writes, child reads
	out      *os.File // child writes, host reads
	attrList *windows.ProcThreadAttributeListContainer

	hpcOnce sync.Once
}

func newConPty(cols, rows int) (c *conPty, err error) {
	var childIn, hostIn, hostOut, childOut windows.Handle
	if err := windows.CreatePipe(&childIn, &hostIn, nil, 0); err != nil {
		return nil, fmt.Errorf("create input pipe: %w", err)
	}
	if err := windows.CreatePipe(&hostOut, &childOut, nil, 0); err != nil {
		windows.CloseHandle(childIn)
		windows.CloseHandle(hostIn)
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	c = &conPty{
		in:  os.NewFile(uintptr(hostIn), "conpty-in"),
		out: os.NewFile(uintptr(hostOut), "conpty-out"),
	}
	defer func() {
		if err != nil {
			_ = c.close()
		}
	}()

	size := windows.Coord{X: int16(cols), Y: int16(rows)}
	err = windows.CreatePseudoConsole(size, childIn, childOut, 0, &c.hpc)
	// The pseudo console holds its own references to the child ends.
	windows.CloseHandle(childIn)
	windows.CloseHandle(childOut)
	if err != nil {
		return nil, fmt.Errorf("create pseudo console: %w", err)
	}

	c.attrList, err = windows.NewProcThreadAttributeList(1)
	if err != nil {
		return nil, fmt.Errorf("create proc thread attribute list: %w", err)
	}
	if err = c.attrList.Update(windows.PROC_THREAD_ATTRIBUTE_PSEUDOCONSOLE, unsafe.Pointer(c.hpc), unsafe.Sizeof(c.hpc)); err != nil {
		return nil, fmt.Errorf("update proc thread attributes: %w", err)
	}
	return c, nil
}

// hangup closes the pseudo console. Attached processes receive
// CTRL_CLOSE_EVENT and the output pipe reaches EOF once drained.
func (c *conPty) hangup() {
	c.hpcOnce.Do(func() {
		if c.hpc != 0 {
			windows.ClosePseudoConsole(c.hpc)
		}
	})
}

func (c *conPty) resize(cols, rows int) error {
	return windows.ResizePseudoConsole(c.hpc, windows.Coord{X: int16(cols), Y: int16(rows)})
}

func (c *conPty) close() error {
	c.hangup()
	if c.attrList != nil {
		c.attrList.Delete()
		c.attrList = nil
	}
	errIn := c.in.Close()
	errOut := c.out.Close()
	if errIn != nil {
		return errIn
	}
	return errOut
}
