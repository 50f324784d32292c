package records

// Table names in the record store.
const (
	TableClients        = "Clients"
	TableKAMUsers       = "KAM Users"
	TableCreditTeam     = "Credit Team Users"
	TableNBFCPartners   = "NBFC Partners"
	TableLoanFiles      = "Loan Applications"
	TableLedger         = "Commission Ledger"
	TableAuditLog       = "File Auditing Log"
	TableClientSettings = "Client Settings"
)

// Field labels shared by more than one package. Where a table uses a second
// label for the same value the alternatives are listed in lookup order.
const (
	FieldClientID       = "Client ID"
	FieldClient         = "Client"
	FieldAssignedKAM    = "Assigned KAM"
	FieldAssignedNBFC   = "Assigned NBFC"
	FieldKAMID          = "KAM ID"
	FieldNBFCID         = "NBFC ID"
	FieldFileID         = "File ID"
	FieldFile           = "File"
	FieldStatus         = "Status"
	FieldEmail          = "Email"
	FieldContactEmail   = "Contact Email"
	FieldCommissionRate = "Commission Rate"
)

// businessIDFields maps a table to the redundant business-id label that is
// accepted as an equivalent key to the row id.
var businessIDFields = map[string]string{
	TableClients:        FieldClientID,
	TableKAMUsers:       FieldKAMID,
	TableCreditTeam:     "Credit User ID",
	TableNBFCPartners:   FieldNBFCID,
	TableLoanFiles:      FieldFileID,
	TableLedger:         "Ledger Entry ID",
	TableAuditLog:       "Log Entry ID",
	TableClientSettings: FieldClientID,
}

// BusinessIDField returns the business-id label for table, or "".
func BusinessIDField(table string) string {
	return businessIDFields[table]
}

// Keys returns the row id and the business id of row in table.
func Keys(table string, row Row) (id string, businessID string) {
	id = row.ID()
	if field := BusinessIDField(table); field != "" {
		businessID = row.String(field)
	}
	return id, businessID
}

// SameRecord reports whether a and b are the same record of table: equal ids,
// equal business ids, or one's id equal to the other's business id.
func SameRecord(table string, a, b Row) bool {
	aID, aBiz := Keys(table, a)
	bID, bBiz := Keys(table, b)
	return KeyMatches(aID, aBiz, bID) || KeyMatches(aID, aBiz, bBiz)
}

// KeyMatches reports whether key names the record whose id is id and whose
// business id is businessID. Keys compare exactly: loose matching is for
// ownership fields, not for picking which row to mutate.
func KeyMatches(id, businessID, key string) bool {
	if key == "" {
		return false
	}
	return key == id || key == businessID
}

// FindByKey returns the first row of table whose id or business id is key.
func FindByKey(table string, rows []Row, key string) (Row, bool) {
	for _, row := range rows {
		id, biz := Keys(table, row)
		if KeyMatches(id, biz, key) {
			return row, true
		}
	}
	return nil, false
}
