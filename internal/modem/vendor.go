package modem

import "strings"

// Vendor identifies the chipset family of an attached modem, detected from
// the ATI response during configure() (spec.md §4.4). The family affects
// whether the destination number must itself be hex-encoded (spec.md §9).
type Vendor int

const (
	VendorUnknown Vendor = iota
	VendorQuectel
	VendorHuawei
	VendorZTE
	VendorSierra
	VendorSIMCom
)

func (v Vendor) String() string {
	switch v {
	case VendorQuectel:
		return "quectel"
	case VendorHuawei:
		return "huawei"
	case VendorZTE:
		return "zte"
	case VendorSierra:
		return "sierra"
	case VendorSIMCom:
		return "simcom"
	default:
		return "unknown"
	}
}

// detectVendor classifies the ATI response lines. Defaults to VendorUnknown,
// which is treated the same as VendorQuectel for the hex-destination quirk
// (spec.md §9: "default to hex-encoding the destination").
func detectVendor(atiLines []string) Vendor {
	joined := strings.ToLower(strings.Join(atiLines, " "))
	switch {
	case strings.Contains(joined, "quectel"):
		return VendorQuectel
	case strings.Contains(joined, "huawei"):
		return VendorHuawei
	case strings.Contains(joined, "zte"):
		return VendorZTE
	case strings.Contains(joined, "sierra"):
		return VendorSierra
	case strings.Contains(joined, "simcom"):
		return VendorSIMCom
	default:
		return VendorUnknown
	}
}

// hexEncodesDestination reports whether this vendor requires the CMGS
// destination number itself to be UCS-2 hex-encoded when the charset is set
// to UCS2 (spec.md §9). Huawei and SIMCom accept plain ASCII destinations
// even in UCS2 charset mode; all others (including unknown/default) hex
// encode.
func (v Vendor) hexEncodesDestination() bool {
	switch v {
	case VendorHuawei, VendorSIMCom:
		return false
	default:
		return true
	}
}

// preservesPlus reports whether this vendor expects the leading "+" of an
// international number to survive hex-encoding. Every known vendor in
// spec.md §9 strips it before re-encoding; this hook exists for the
// "configured quirk per vendor" the spec reserves for vendors not yet seen.
func (v Vendor) preservesPlus() bool {
	return false
}
