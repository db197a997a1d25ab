package weather

// Region identifies the province or territory block of the weather reference.
type Region struct {
	Code    string
	English string
	French  string
}

var (
	regionBC = Region{Code: "1", English: "BRITISH COLUMBIA", French: "COLOMBIE-BRITANNIQUE"}
	regionNL = Region{Code: "5", English: "NEWFOUNDLAND AND LABRADOR", French: "TERRE-NEUVE-ET-LABRADOR"}
	regionQC = Region{Code: "6", English: "QUEBEC", French: "QUÉBEC"}
	regionON = Region{Code: "7", English: "ONTARIO", French: "ONTARIO"}
	regionMB = Region{Code: "8", English: "MANITOBA", French: "MANITOBA"}
	regionYT = Region{Code: "11", English: "YUKON", French: "YUKON"}
	regionNT = Region{Code: "12", English: "NORTHWEST TERRITORIES", French: "TERRITOIRES DU NORD-OUEST"}
	regionNU = Region{Code: "13", English: "NUNAVUT", French: "NUNAVUT"}
)

// regionsByLocation maps upper-case weather locations to their region.
var regionsByLocation = map[string]Region{
	"BONILLA ISLAND":        regionBC,
	"DEASE LAKE":            regionBC,
	"ESTEVAN POINT":         regionBC,
	"FORT NELSON":           regionBC,
	"PORT HARDY":            regionBC,
	"PRINCE GEORGE":         regionBC,
	"PUNTZI MOUNTAIN":       regionBC,
	"ROSE SPIT":             regionBC,
	"SALMON ARM":            regionBC,
	"SARTINE ISLAND":        regionBC,
	"SHERINGHAM POINT":      regionBC,
	"MARY'S HARBOUR":        regionNL,
	"BONAVISTA":             regionNL,
	"BURGEO":                regionNL,
	"CARTWRIGHT":            regionNL,
	"ST-LAWRENCE":           regionNL,
	"CHAMOUCHOUANE":         regionQC,
	"INUKJUAK":              regionQC,
	"KUUJJUAQ":              regionQC,
	"KUUJJUARAPIK":          regionQC,
	"NATASHQUAN":            regionQC,
	"VAL-D'OR":              regionQC,
	"ÎLES DE LA MADELEINE":  regionQC,
	"ARMSTRONG":             regionON,
	"LANSDOWNE HOUSE":       regionON,
	"NAGAGAMI":              regionON,
	"PEAWANUCK":             regionON,
	"TIMMINS":               regionON,
	"COLLINS BAY":           regionMB,
	"GILLAM":                regionMB,
	"TADOULE LAKE":          regionMB,
	"BURWASH":               regionYT,
	"OLD CROW":              regionYT,
	"WATSON LAKE":           regionYT,
	"DELINE":                regionNT,
	"FORT GOOD HOPE":        regionNT,
	"FORT LIARD":            regionNT,
	"FORT PROVIDENCE":       regionNT,
	"FORT SIMPSON":          regionNT,
	"FORT SMITH":            regionNT,
	"HOLMAN":                regionNT,
	"LAC LA MARTRE":         regionNT,
	"LITTLE CHICAGO":        regionNT,
	"LOWER CARP LAKE":       regionNT,
	"LUTSELK'E":             regionNT,
	"NORMAN WELLS":          regionNT,
	"PAULATUK":              regionNT,
	"SACHS HARBOUR CLIMATE": regionNT,
	"TUKTOYAKTUK":           regionNT,
	"YOHIN":                 regionNT,
	"ARCTIC BAY":            regionNU,
	"ARVIAT CLIMATE":        regionNU,
	"BAKER LAKE":            regionNU,
	"CAMBRIDGE BAY":         regionNU,
	"CAPE DORSET CLIMATE":   regionNU,
	"CLYDE RIVER CLIMATE":   regionNU,
	"CORAL HARBOUR":         regionNU,
	"EUREKA":                regionNU,
	"GJOA HAVEN CLIMATE":    regionNU,
	"HALL BEACH":            regionNU,
	"IQALUIT":               regionNU,
	"KUGAARUK CLIMATE":      regionNU,
	"KUGLUKTUK":             regionNU,
	"PANGNIRTUNG":           regionNU,
	"POND INLET":            regionNU,
	"QIKIQTARJUAQ CLIMATE":  regionNU,
	"RANKIN INLET":          regionNU,
	"RESOLUTE BAY":          regionNU,
	"TALOYOAK":              regionNU,
}

// RegionFor returns the region of an upper-case weather location.
func RegionFor(location string) (Region, bool) {
	r, ok := regionsByLocation[location]
	return r, ok
}
