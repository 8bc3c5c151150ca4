package warehouse

// EntityKind is the closed set of sync-able entity kinds. Adding a kind
// without extending Table() fails at compile time via the exhaustive switch.
type EntityKind int

const (
	EntityCategories EntityKind = iota
	EntityClients
	EntityLocations
	EntityManufacturers
	EntityProducts
	EntityCashless
)

// AuxiliaryKinds are the small non-paginated feeds the daily sync refreshes
// after the cashless window, in sync order.
var AuxiliaryKinds = []EntityKind{
	EntityCategories,
	EntityClients,
	EntityLocations,
	EntityManufacturers,
	EntityProducts,
}

func (k EntityKind) String() string {
	switch k {
	case EntityCategories:
		return "categories"
	case EntityClients:
		return "clients"
	case EntityLocations:
		return "locations"
	case EntityManufacturers:
		return "manufacturers"
	case EntityProducts:
		return "products"
	case EntityCashless:
		return "cashless"
	}
	return "unknown"
}

// EntityTable is the fixed, process-wide warehouse configuration for one
// entity kind: the MERGE key plus the explicit column-type overrides that
// always win over sniffing. Values that merely look numeric (zero-padded
// codes, CNPJ, barcodes) must never be coerced, so the string set is the
// widest.
type EntityTable struct {
	Name           string
	IDColumn       string
	StringColumns  map[string]bool
	DateColumns    []string
	NumericColumns []string
	// TagColumns hold multi-valued list fields that land as one
	// comma-delimited string.
	TagColumns []string
}

func (t EntityTable) IsDateColumn(name string) bool {
	for _, c := range t.DateColumns {
		if c == name {
			return true
		}
	}
	return false
}

func (t EntityTable) IsNumericColumn(name string) bool {
	for _, c := range t.NumericColumns {
		if c == name {
			return true
		}
	}
	return false
}

func (t EntityTable) IsTagColumn(name string) bool {
	for _, c := range t.TagColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Table returns the configuration for a kind. The switch is exhaustive over
// the enumeration above.
func (k EntityKind) Table() EntityTable {
	switch k {
	case EntityCategories:
		return EntityTable{
			Name:     "categories",
			IDColumn: "id",
			StringColumns: stringSet(
				"id", "name",
			),
		}
	case EntityClients:
		return EntityTable{
			Name:     "clients",
			IDColumn: "id",
			StringColumns: stringSet(
				"id", "name", "corporate_name", "cpf", "cnpj", "nif",
				"contact_name", "contact_phone", "contact_email", "notes",
				"legal_type", "main_location_id",
			),
		}
	case EntityLocations:
		return EntityTable{
			Name:     "locations",
			IDColumn: "id",
			StringColumns: stringSet(
				"id", "client_id", "name", "phone", "street", "number",
				"complement", "neighborhood", "city", "country", "state",
				"zip_code",
			),
			NumericColumns: []string{"latitude", "longitude"},
		}
	case EntityManufacturers:
		return EntityTable{
			Name:     "manufacturers",
			IDColumn: "id",
			StringColumns: stringSet(
				"id", "name",
			),
		}
	case EntityProducts:
		return EntityTable{
			Name:     "products",
			IDColumn: "id",
			StringColumns: stringSet(
				"id", "type", "manufacturer_id", "category_id",
				"supply_category_id", "name", "upc_code", "barcode",
				"external_id", "image", "tags", "additional_barcodes",
				"ncm_code", "cest_code", "url", "inventories",
				"packing_id", "packing_name",
			),
			DateColumns: []string{"created_at", "updated_at"},
			NumericColumns: []string{
				"weight", "cost_price", "default_price",
				"vendible_balance", "packing_quantity",
			},
			TagColumns: []string{"tags", "additional_barcodes"},
		}
	case EntityCashless:
		return EntityTable{
			Name:     "cashless",
			IDColumn: "transaction_id",
			StringColumns: stringSet(
				"transaction_id", "point_of_sale", "kind", "status",
				"installation_id", "planogram_item_id", "equipment_id",
				"equipment_label_number", "equipment_serial_number",
				"masked_card_number", "issuer_authorization_code",
				"order_id", "cancel_reason_detailed", "physical_locator",
				"place", "planogram_item", "cashless_error_friendly",
				"client_id", "client_name", "location_id", "location_name",
				"machine_id", "machine_asset_number", "machine_model_id",
				"machine_model_name", "good_id", "good_type",
				"good_category_id", "good_manufacturer_id", "good_name",
				"good_upc_code", "good_barcode", "eft_provider_id",
				"eft_provider_name", "eft_authorizer_id",
				"eft_authorizer_name", "eft_card_brand_id",
				"eft_card_brand_name", "eft_card_type_id",
				"eft_card_type_name",
				"cashless_error_complete_description",
				"payment_authorizer_id", "payment_authorizer_name",
			),
			DateColumns: []string{"occurred_at"},
			NumericColumns: []string{
				"number_of_payments", "quantity", "value",
				"discount_value", "cost_price", "request_number",
			},
		}
	}
	return EntityTable{}
}

func stringSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
