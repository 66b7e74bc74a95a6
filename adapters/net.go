package adapters

import (
	"net"
	"net/netip"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// Declared types of the network fields.
var (
	AddrType = ds.TypeFor[netip.Addr]()
	MACType  = ds.TypeFor[net.HardwareAddr]()
)

// IPv4 declares a 4-byte address in network order.
func IPv4(name string) *ds.FieldSpec {
	return ds.Field(name, "4s").As(AddrType).Adapt(Addr{Len: 4})
}

// IPv6 declares a 16-byte address in network order.
func IPv6(name string) *ds.FieldSpec {
	return ds.Field(name, "16s").As(AddrType).Adapt(Addr{Len: 16})
}

// MAC declares a 6-byte hardware address.
func MAC(name string) *ds.FieldSpec {
	return ds.Field(name, "6s").As(MACType).Adapt(HardwareAddr{Len: 6})
}

// Addr converts netip.Addr values to their raw bytes. Len is 4 or 16.
// Encode also accepts the textual form and raw byte slices.
type Addr struct {
	Len int
}

func (a Addr) Encode(value any, ctx *ds.Context) (any, error) {
	var addr netip.Addr
	switch v := value.(type) {
	case netip.Addr:
		addr = v
	case string:
		p, err := netip.ParseAddr(v)
		if err != nil {
			return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "parse address")
		}
		addr = p
	case net.IP:
		p, ok := netip.AddrFromSlice(v)
		if !ok {
			return nil, errors.InvalidData(ctx.G.Phase(), "malformed net.IP")
		}
		addr = p
	case []byte:
		p, ok := netip.AddrFromSlice(v)
		if !ok {
			return nil, errors.InvalidData(ctx.G.Phase(), "address needs 4 or 16 bytes")
		}
		addr = p
	default:
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(value), "expected an IP address")
	}

	switch a.Len {
	case 4:
		addr = addr.Unmap()
		if !addr.Is4() {
			return nil, errors.New(ctx.G.Phase(), errors.KindOverflow).
				Value(addr.String()).
				Detail("%s is not an IPv4 address", addr).
				Build()
		}
		b := addr.As4()
		return b[:], nil
	default:
		b := addr.As16()
		return b[:], nil
	}
}

func (a Addr) Decode(raw any, ctx *ds.Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		return nil, errors.InvalidData(ctx.G.Phase(), "address needs 4 or 16 bytes")
	}
	return addr, nil
}

// HardwareAddr converts net.HardwareAddr values to raw bytes of Len. Encode
// also accepts the colon-separated textual form.
type HardwareAddr struct {
	Len int
}

func (a HardwareAddr) Encode(value any, ctx *ds.Context) (any, error) {
	var hw net.HardwareAddr
	switch v := value.(type) {
	case net.HardwareAddr:
		hw = v
	case []byte:
		hw = v
	case string:
		p, err := net.ParseMAC(v)
		if err != nil {
			return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "parse hardware address")
		}
		hw = p
	default:
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(value), "expected a hardware address")
	}
	if len(hw) != a.Len {
		return nil, errors.InvalidData(ctx.G.Phase(), "hardware address has the wrong length")
	}
	return []byte(hw), nil
}

func (a HardwareAddr) Decode(raw any, ctx *ds.Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	return net.HardwareAddr(b), nil
}
