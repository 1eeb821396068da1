package services

import (
	"fmt"
	"strings"
	"time"
)

const documentTitle = "CERERE DE CONFIRMARE DE SOLD"

var illegalFilenameChars = strings.NewReplacer(
	`\`, " ", "/", " ", ":", " ", "*", " ", "?", " ",
	`"`, " ", "<", " ", ">", " ", "|", " ",
)

// DocumentName builds the file name of a confirmation letter, e.g.
// "CERERE DE CONFIRMARE DE SOLD Nr. 42 31.12.2024 - ACME SRL.pdf".
func DocumentName(number int64, balanceDate time.Time, partnerName string) string {
	name := fmt.Sprintf("%s Nr. %d %s - %s", documentTitle, number, balanceDate.Format("02.01.2006"), partnerName)
	name = strings.Join(strings.Fields(illegalFilenameChars.Replace(name)), " ")
	return name + ".pdf"
}
