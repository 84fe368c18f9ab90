package machine

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// PinDriver pulses one digital output low for a fixed width then back
// high. The relay board vends while the pin is held low.
type PinDriver interface {
	Pulse(pin int, width time.Duration) error
}

// SysfsDriver drives GPIO pins through the kernel sysfs interface.
// On hosts without GPIO (dev laptops) every call fails, which callers
// treat as simulation mode.
type SysfsDriver struct{}

func (SysfsDriver) Pulse(pin int, width time.Duration) error {
	base := "/sys/class/gpio/gpio" + strconv.Itoa(pin)
	if _, err := os.Stat(base); err != nil {
		if err := writeFile("/sys/class/gpio/export", strconv.Itoa(pin)); err != nil {
			return fmt.Errorf("gpio %d: %w", pin, err)
		}
	}
	if err := writeFile(base+"/direction", "out"); err != nil {
		return fmt.Errorf("gpio %d: %w", pin, err)
	}
	if err := writeFile(base+"/value", "0"); err != nil {
		return fmt.Errorf("gpio %d: %w", pin, err)
	}
	time.Sleep(width)
	if err := writeFile(base+"/value", "1"); err != nil {
		return fmt.Errorf("gpio %d: %w", pin, err)
	}
	return nil
}

func writeFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(value)
	return err
}
