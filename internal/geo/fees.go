package geo

// DefaultDeliveryFee applies when neither the customer zone nor the store
// defines a fee, in minor-currency units.
const DefaultDeliveryFee int64 = 500

// zoneFees maps serviced neighborhood ids to their base delivery fee.
var zoneFees = map[string]int64{
	"hadda":     500,
	"sabeen":    600,
	"shumailah": 700,
	"safiah":    500,
	"tahrir":    400,
	"mathbah":   800,
}

// ZoneFee looks up the base delivery fee for a zone id. ok is false for
// unknown zones.
func ZoneFee(zone string) (fee int64, ok bool) {
	fee, ok = zoneFees[zone]
	return fee, ok
}
