//go:build tinygo

// Command firmware wires the motion core (planner, stepper executor,
// settings store, serial front-end and coordinator) to a real board:
// three step/direction axis pairs, a UART for the g-code/system-command
// link, a UART-addressed TMC2209 per axis, and an optional Sharp Memory
// LCD status banner over SPI. Every peripheral is configured first,
// bound into its driver, and only then does the runtime loop start.
package main

import (
	"machine"
	"time"

	"github.com/go-cnc/cncfw/block"
	"github.com/go-cnc/cncfw/coordinator"
	"github.com/go-cnc/cncfw/hal"
	"github.com/go-cnc/cncfw/hal/display"
	"github.com/go-cnc/cncfw/hal/smartdriver"
	"github.com/go-cnc/cncfw/planner"
	"github.com/go-cnc/cncfw/serial"
	"github.com/go-cnc/cncfw/settings"
	"github.com/go-cnc/cncfw/stepper"
	"github.com/go-cnc/cncfw/sysstate"
)

// Board wiring. A real build swaps these for the pin/peripheral names
// that match its own schematic; which pins is a bring-up decision left
// to the board, not to this firmware.
var (
	stepPins = [3]machine.Pin{machine.D2, machine.D3, machine.D4}
	dirPins  = [3]machine.Pin{machine.D5, machine.D6, machine.D7}

	uart = machine.UART0

	displaySPI = machine.SPI0
	displayCS  = machine.D10

	driverUART = machine.UART1
)

func main() {
	time.Sleep(time.Second)

	for i := range stepPins {
		stepPins[i].Configure(machine.PinConfig{Mode: machine.PinOutput})
		dirPins[i].Configure(machine.PinConfig{Mode: machine.PinOutput})
	}

	uart.Configure(machine.UARTConfig{BaudRate: 115200})

	sys := sysstate.New()
	store := &settings.MemStore{}
	set := settings.Load(store)

	buf := block.NewBuffer(block.DefaultCapacity)

	p := planner.New(planner.Config{
		StepsPerMM:                 set.StepsPerMM,
		AccelerationMMPerMin2:      set.Acceleration,
		JunctionDeviation:          set.JunctionDeviation,
		AccelerationTicksPerSecond: 100,
		MinimumStepsPerMinute:      60,
	}, buf)

	var halStep, halDir [3]hal.Pin
	for i := range stepPins {
		halStep[i] = hal.MachinePin(stepPins[i])
		halDir[i] = hal.MachinePin(dirPins[i])
	}

	primaryTimer := hal.NewMachineTimer(&machine.TCC0)
	resetTimer := hal.NewMachineTimer(&machine.TCC1)

	ex := stepper.NewExecutor(stepper.Config{
		StepPins:                   halStep,
		DirPins:                    halDir,
		StepPulseMicroseconds:      set.PulseMicroseconds,
		TimerFrequencyHz:           48_000_000,
		AccelerationTicksPerSecond: 100,
		MinimumStepsPerMinute:      60,
	}, primaryTimer, resetTimer, buf, sys)

	configureDrivers()

	var banner display.Device
	haveDisplay := configureDisplay(&banner)

	write := func(s string) { uart.Write([]byte(s)) }

	var coord *coordinator.Coordinator
	frontend := serial.NewFrontend(sys, &set, store, func(line string) error {
		return coord.RunGCodeLine(line)
	}, write)

	coord = coordinator.New(sys, p, ex, &set, nil, nil)

	frontend.RunStartupLines()
	sys.SetState(sysstate.Idle)

	lastRender := time.Now()
	for {
		coord.Poll()

		for uart.Buffered() > 0 {
			b, err := uart.ReadByte()
			if err != nil {
				break
			}
			frontend.Feed(b)
		}

		if haveDisplay && time.Since(lastRender) > 200*time.Millisecond {
			pos := sys.Position()
			mm := [3]float32{
				float32(pos[0]) / set.StepsPerMM[0],
				float32(pos[1]) / set.StepsPerMM[1],
				float32(pos[2]) / set.StepsPerMM[2],
			}
			if err := banner.RenderStatus(sys.State().String(), mm); err != nil {
				println("display render failed:", err.Error())
			}
			lastRender = time.Now()
		}
	}
}

// configureDrivers brings up one smartdriver.Driver per axis, sharing a
// single UART bus the way multiple TMC2209s are daisy-chained by slave
// address on one wire in practice. A driver that fails to verify is
// left unconfigured rather than aborting startup — a missing or
// misaddressed axis driver shouldn't keep the rest of the machine from
// homing and running.
func configureDrivers() {
	comm := smartdriver.NewUARTComm(*driverUART, 0)
	cfg := smartdriver.Config{
		RunCurrentPercent:  80,
		HoldCurrentPercent: 40,
		HoldDelay:          6,
		Microsteps:         16,
		StealthChop:        true,
	}
	for axis := uint8(0); axis < 3; axis++ {
		d := smartdriver.NewDriver(comm, axis)
		if err := d.Setup(); err != nil {
			println("driver setup failed:", err.Error())
			continue
		}
		if err := d.Verify(); err != nil {
			println("driver not responding on axis", axis, ":", err.Error())
			continue
		}
		if err := d.Configure(cfg); err != nil {
			println("driver configure failed on axis", axis, ":", err.Error())
		}
	}
}

// configureDisplay brings up the optional status banner. Absence of a
// working display is not fatal: it's an ambient diagnostic surface, not
// a required component.
func configureDisplay(d *display.Device) bool {
	err := displaySPI.Configure(machine.SPIConfig{
		Frequency: 2_000_000,
		LSBFirst:  true,
	})
	if err != nil {
		println("display SPI configure failed:", err.Error())
		return false
	}
	displayCS.Configure(machine.PinConfig{Mode: machine.PinOutput})

	*d = display.New(displaySPI, hal.MachinePin(displayCS))
	d.Configure(display.ConfigLS011B7DH03)
	return true
}
