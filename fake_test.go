package repeater

import (
	"net"
	"sync"
)

// fakeDriver is a deterministic, in-memory stand-in for RadioDriver
// (spec.md §6 explicitly puts the real driver out of scope). It holds
// a back-reference to the Repeater under test so ConnectSTA/
// DisconnectSTA can synchronously fire the STA_CONNECTED/
// STA_DISCONNECTED notifications a real driver would deliver
// asynchronously off its own event thread, keeping clone/restore tests
// fast and free of the production timeouts (spec.md §4.5's 5s/15s
// bounds) — grounded on the teacher's test/setup_test.go testContext,
// which wires a fake transport directly to the handler under test.
type fakeDriver struct {
	mu sync.Mutex

	staMAC net.HardwareAddr
	apMAC  net.HardwareAddr

	apClients []net.HardwareAddr

	staCfg     STAConfig
	powerSave  PowerSaveMode
	staDHCPOn  bool
	apDHCPOn   bool
	apIP       net.IP
	apMask     net.IPMask
	apGateway  net.IP

	transmitted map[Interface]int
	delivered   map[Interface][][]byte
	freed       int

	setMACErr    error
	connectErr   error
	noAutoEvents bool // when true, Connect/DisconnectSTA do not fire notifications

	repeater *Repeater
}

func newFakeDriver(staMAC, apMAC net.HardwareAddr) *fakeDriver {
	return &fakeDriver{
		staMAC:      append(net.HardwareAddr(nil), staMAC...),
		apMAC:       append(net.HardwareAddr(nil), apMAC...),
		staDHCPOn:   true,
		apDHCPOn:    true,
		transmitted: make(map[Interface]int),
		delivered:   make(map[Interface][][]byte),
	}
}

func (d *fakeDriver) SetSTAMAC(mac net.HardwareAddr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setMACErr != nil {
		return d.setMACErr
	}
	d.staMAC = append(net.HardwareAddr(nil), mac...)
	return nil
}

func (d *fakeDriver) STAMAC() net.HardwareAddr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append(net.HardwareAddr(nil), d.staMAC...)
}

func (d *fakeDriver) APMAC() net.HardwareAddr {
	return append(net.HardwareAddr(nil), d.apMAC...)
}

func (d *fakeDriver) ConfigureSTA(cfg STAConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staCfg = cfg
	return nil
}

func (d *fakeDriver) ConnectSTA() error {
	d.mu.Lock()
	err := d.connectErr
	skip := d.noAutoEvents
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if !skip && d.repeater != nil {
		d.repeater.NotifySTAConnected(net.HardwareAddr{0x00, 0x66, 0x66, 0x66, 0x66, 0x66}, 6)
	}
	return nil
}

func (d *fakeDriver) DisconnectSTA() error {
	d.mu.Lock()
	skip := d.noAutoEvents
	d.mu.Unlock()
	if !skip && d.repeater != nil {
		d.repeater.NotifySTADisconnected("test")
	}
	return nil
}

func (d *fakeDriver) SetPowerSave(mode PowerSaveMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.powerSave = mode
	return nil
}

func (d *fakeDriver) APClients() []net.HardwareAddr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]net.HardwareAddr(nil), d.apClients...)
}

func (d *fakeDriver) setAPClients(macs ...net.HardwareAddr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apClients = append([]net.HardwareAddr(nil), macs...)
}

func (d *fakeDriver) TransmitPeer(iface Interface, frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transmitted[iface]++
	return nil
}

func (d *fakeDriver) DeliverToStack(iface Interface, frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := append([]byte(nil), frame...)
	d.delivered[iface] = append(d.delivered[iface], cp)
	return nil
}

func (d *fakeDriver) FreeBuffer(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freed++
}

func (d *fakeDriver) ConfigureInterface(iface Interface, ip net.IP, mask net.IPMask, gateway net.IP) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if iface == AP {
		d.apIP, d.apMask, d.apGateway = ip, mask, gateway
	}
	return nil
}

func (d *fakeDriver) SetDHCPClient(iface Interface, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if iface == STA {
		d.staDHCPOn = enabled
	}
	return nil
}

func (d *fakeDriver) SetDHCPServer(iface Interface, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if iface == AP {
		d.apDHCPOn = enabled
	}
	return nil
}

// fakeConfig is a trivial in-memory ConfigStore (spec.md §6).
type fakeConfig struct {
	strings map[string]string
	bools   map[string]bool
	ints    map[string]int
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{
		strings: map[string]string{},
		bools:   map[string]bool{},
		ints:    map[string]int{},
	}
}

func (c *fakeConfig) GetString(key string) (string, bool) { v, ok := c.strings[key]; return v, ok }
func (c *fakeConfig) GetBool(key string) (bool, bool)     { v, ok := c.bools[key]; return v, ok }
func (c *fakeConfig) GetInt(key string) (int, bool)       { v, ok := c.ints[key]; return v, ok }

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

// newTestRepeater wires a fakeDriver and fakeConfig into a running
// Repeater, returning a cleanup func the caller should defer.
func newTestRepeater() (*Repeater, *fakeDriver, func()) {
	driver := newFakeDriver(mustMAC("02:00:00:00:00:01"), mustMAC("02:00:00:00:00:02"))
	r := New(driver, newFakeConfig(), driver.staMAC)
	driver.repeater = r
	r.Run()
	return r, driver, func() { r.Stop() }
}
