// Package dhcp reads and writes DHCPv4 messages (RFC 2131) with their
// options (RFC 2132).
//
// Options are records {"code", "data"}. Known codes decode into typed
// values: addresses as netip.Addr, the lease time as a time.Duration, the
// message type as a MessageType. Unknown codes keep their raw bytes.
package dhcp

import (
	"fmt"
	"net/netip"
	"time"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/adapters"
	"github.com/wippyai/datastruct/internal/coerce"
)

// Option codes with a typed decoding.
const (
	OptPad          = 0
	OptSubnetMask   = 1
	OptRouter       = 3
	OptDNS          = 6
	OptHostname     = 12
	OptRequestedIP  = 50
	OptLeaseTime    = 51
	OptMessageType  = 53
	OptServerID     = 54
	OptParamRequest = 55
	OptEnd          = 255
	MagicCookie     = 0x63825363
)

// MessageType is the value of option 53.
type MessageType uint8

const (
	Discover MessageType = iota + 1
	Offer
	Request
	Decline
	Ack
	Nak
	Release
	Inform
)

var messageTypeNames = [...]string{"", "DISCOVER", "OFFER", "REQUEST", "DECLINE", "ACK", "NAK", "RELEASE", "INFORM"}

func (m MessageType) String() string {
	if int(m) < len(messageTypeNames) && m != 0 {
		return messageTypeNames[m]
	}
	return fmt.Sprintf("MessageType(%d)", uint8(m))
}

var (
	// MessageTypeType is the declared type of option 53.
	MessageTypeType = ds.TypeFor[MessageType]()
	addrList        = ds.ListOf(adapters.AddrType)
)

// Option is one entry of the options area. Pad and End have no length byte.
var Option = ds.NewStruct("Option",
	ds.Field("code", "B"),
	ds.Cond("_len", ds.Optional(ds.Uint8), ds.Func(hasBody),
		ds.Elem("B").Build(ds.Func(func(ctx *ds.Context) (any, error) {
			return ctx.Sizeof("data")
		}))),
	ds.Switch("data", ds.Any, ds.Ref[any]("code"),
		ds.On(OptPad, ds.NoValue, ds.Padding(ds.Lit(0))),
		ds.On(OptEnd, ds.NoValue, ds.Padding(ds.Lit(0))),
		ds.On(OptSubnetMask, adapters.AddrType, adapters.IPv4("")),
		ds.On(OptRouter, addrList, addresses()),
		ds.On(OptDNS, addrList, addresses()),
		ds.On(OptHostname, ds.String, ds.Text("", ds.Func(bodyLen))),
		ds.On(OptRequestedIP, adapters.AddrType, adapters.IPv4("")),
		ds.On(OptLeaseTime, adapters.DurationType, adapters.Duration("", ">I", time.Second)),
		ds.On(OptMessageType, MessageTypeType, ds.Field("", "B").As(MessageTypeType)),
		ds.On(OptServerID, adapters.AddrType, adapters.IPv4("")),
		ds.On(OptParamRequest, ds.ListOf(ds.Uint8), ds.VarList("", ds.ListOf(ds.Uint8), ds.Func(bodyLen), ds.Elem("B"))),
		ds.Otherwise(ds.Bytes, ds.Raw("", ds.Func(bodyLen))),
	),
)

func hasBody(ctx *ds.Context) (bool, error) {
	code, err := ctx.Int("code")
	return code != OptPad && code != OptEnd, err
}

func addresses() *ds.FieldSpec {
	return ds.VarList("", addrList, ds.Func(bodyLen), adapters.IPv4(""))
}

// bodyLen is the length byte on unpack. On pack the length follows from
// the value itself; lists get the whole option budget and stop at their
// last item.
func bodyLen(ctx *ds.Context) (int, error) {
	if !ctx.G.Packing {
		return ctx.Int("_len")
	}
	v, _ := ctx.Value("data")
	if b, ok := coerce.Bytes(v); ok {
		return len(b), nil
	}
	return 255, nil
}

// Message is a DHCPv4 message. Options run up to and including End.
var Message = ds.NewStruct("DHCP",
	ds.Field("op", "B"),
	ds.Field("htype", "B").Default(1),
	ds.Field("hlen", "B").Default(6),
	ds.Field("hops", "B").Default(0),
	ds.Field("xid", "I"),
	ds.Field("secs", "H").Default(0),
	ds.Bitfield("flags", "H", ds.Flag("broadcast"), ds.Reserved(15)),
	adapters.IPv4("ciaddr").Default(netip.IPv4Unspecified()),
	adapters.IPv4("yiaddr").Default(netip.IPv4Unspecified()),
	adapters.IPv4("siaddr").Default(netip.IPv4Unspecified()),
	adapters.IPv4("giaddr").Default(netip.IPv4Unspecified()),
	adapters.MAC("chaddr"),
	ds.Padding(ds.Lit(10)),
	ds.Text("sname", ds.Lit(64)).Default(""),
	ds.Text("file", ds.Lit(128)).Default(""),
	ds.Const("_cookie", "I", uint32(MagicCookie)),
	ds.Repeat("options", ds.ListOf(ds.StructOf(Option)), ds.Sub("", Option)).
		Last(ds.Func(isEnd)),
).WithOptions(ds.Endian(ds.Network), ds.PaddingPattern(0))

func isEnd(ctx *ds.Context) (bool, error) {
	rec, ok := ctx.P.Item.(*ds.Record)
	if !ok {
		return false, nil
	}
	code, _ := rec.Get("code")
	n, _ := coerce.ToUint64(code)
	return n == OptEnd, nil
}

// Opt builds an option record. End is appended by NewMessage.
func Opt(code uint8, data any) *ds.Record {
	values := map[string]any{"code": code}
	if code != OptPad && code != OptEnd {
		values["data"] = data
	}
	return Option.MustNew(values)
}

// NewMessage returns a message record with the options terminated by End.
func NewMessage(values map[string]any, opts ...*ds.Record) (*ds.Record, error) {
	list := make([]any, 0, len(opts)+1)
	for _, o := range opts {
		list = append(list, o)
	}
	list = append(list, Opt(OptEnd, nil))
	m := make(map[string]any, len(values)+1)
	for k, v := range values {
		m[k] = v
	}
	m["options"] = list
	return Message.New(m)
}

// Lookup returns the data of the first option with the given code.
func Lookup(msg *ds.Record, code uint8) (any, bool) {
	v, _ := msg.Get("options")
	opts, _ := v.([]any)
	for _, o := range opts {
		rec, ok := o.(*ds.Record)
		if !ok {
			continue
		}
		c, _ := rec.Get("code")
		if n, _ := coerce.ToUint64(c); n == uint64(code) {
			return rec.Get("data")
		}
	}
	return nil, false
}
