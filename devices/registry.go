package devices

import (
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/exp/slices"
)

const DefaultDriver = "Generic"

// Driver installs a device dialect into a descriptor.
type Driver struct {
	Name    string
	Install func(d *Descriptor)
}

var drivers = cmap.New[Driver]()

func init() {
	Register(Driver{Name: DefaultDriver, Install: installGeneric})
	Register(Driver{Name: PosiGraphDriver, Install: installPosiGraph})
	Register(Driver{Name: OGNTrackerDriver, Install: installOGNTracker})
}

// Register adds drv, replacing a driver of the same name.
func Register(drv Driver) {
	drivers.Set(drv.Name, drv)
}

func Lookup(name string) (Driver, bool) {
	return drivers.Get(name)
}

// Names lists the registered drivers in sorted order.
func Names() []string {
	names := drivers.Keys()
	slices.Sort(names)
	return names
}

// Install looks up name and installs it into d.
func Install(name string, d *Descriptor) error {
	if name == "" {
		name = DefaultDriver
	}
	drv, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("devices: unknown driver %q, have %v", name, Names())
	}
	d.Driver = drv.Name
	d.Name = drv.Name
	if drv.Install != nil {
		drv.Install(d)
	}
	return nil
}

func installGeneric(d *Descriptor) {
	d.ParseNMEA = nil
}
