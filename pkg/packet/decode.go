package packet

// Packet holds the layers decoded from one frame. IPv4 is nil unless the
// frame carries IPv4 and decoding went that far.
type Packet struct {
	Ethernet *EthernetFrame
	IPv4     *IPv4Datagram
}

type LayersDecodePostHook interface {
	OnEthernet(*EthernetFrame)
	OnIPv4(*IPv4Datagram)
}

type EmptyLayersDecodePostHook struct{}

func (EmptyLayersDecodePostHook) OnEthernet(*EthernetFrame) {}
func (EmptyLayersDecodePostHook) OnIPv4(*IPv4Datagram)      {}

type EthernetDecodePostFn func(*EthernetFrame)
type IPv4DecodePostFn func(*IPv4Datagram)
type PacketDecodePostFn func(*Packet)

type decodeOpts struct {
	skipIPv4       bool
	ethernetHooks  []EthernetDecodePostFn
	ipv4Hooks      []IPv4DecodePostFn
	completedHooks []PacketDecodePostFn
}

type DecodeOpt func(*decodeOpts)

func WithEthernetHook(hook EthernetDecodePostFn) DecodeOpt {
	return func(do *decodeOpts) { do.ethernetHooks = append(do.ethernetHooks, hook) }
}

func WithIPv4Hook(hook IPv4DecodePostFn) DecodeOpt {
	return func(do *decodeOpts) { do.ipv4Hooks = append(do.ipv4Hooks, hook) }
}

// WithLayersDecodedHook registers hooks for every layer
func WithLayersDecodedHook(layersHook LayersDecodePostHook) DecodeOpt {
	return func(do *decodeOpts) {
		WithEthernetHook(layersHook.OnEthernet)(do)
		WithIPv4Hook(layersHook.OnIPv4)(do)
	}
}

// WithCompletedHook registers a hook that will be called after all layers are decoded
func WithCompletedHook(hook PacketDecodePostFn) DecodeOpt {
	return func(do *decodeOpts) { do.completedHooks = append(do.completedHooks, hook) }
}

// WithoutIPv4 stops decoding at the link layer.
func WithoutIPv4() DecodeOpt {
	return func(do *decodeOpts) { do.skipIPv4 = true }
}

// Decoder defines the interface for decoding layers
type Decoder interface {
	Decode(data []byte) (*Packet, error)
}

// LayersDecoder chains the Ethernet and IPv4 decoders. It keeps no state
// between calls and may be shared by goroutines if its hooks can.
type LayersDecoder struct {
	opts decodeOpts
}

func NewLayersDecoder(opts ...DecodeOpt) *LayersDecoder {
	var o decodeOpts
	for _, opt := range opts {
		opt(&o)
	}
	return &LayersDecoder{opts: o}
}

// Decode returns the decoded layers. When the IPv4 layer fails the packet
// still carries the Ethernet frame next to the error, and completed hooks
// are not called.
func (d *LayersDecoder) Decode(data []byte) (*Packet, error) {
	eth, err := DecodeEthernet(data)
	if err != nil {
		return nil, err
	}
	p := &Packet{Ethernet: eth}
	for _, hook := range d.opts.ethernetHooks {
		hook(eth)
	}

	if eth.Type == EtherTypeIPv4 && !d.opts.skipIPv4 {
		ip, err := DecodeIPv4(eth.Payload)
		if err != nil {
			return p, err
		}
		p.IPv4 = ip
		for _, hook := range d.opts.ipv4Hooks {
			hook(ip)
		}
	}

	for _, hook := range d.opts.completedHooks {
		hook(p)
	}
	return p, nil
}
