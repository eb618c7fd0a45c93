package classifier

import (
	"sort"
	"strings"
	"unicode"
)

// Hierarchy maps top-level specialty tags to their sub-specialties, using
// the tag spelling of the facility dataset.
var Hierarchy = map[string][]string{
	"internalMedicine": {"cardiology", "endocrinologyAndDiabetesAndMetabolism", "gastroenterology",
		"geriatricsInternalMedicine", "hematology", "hospiceAndPalliativeInternalMedicine",
		"infectiousDiseases", "nephrology", "medicalOncology", "pulmonology", "rheumatology"},
	"familyMedicine":    nil,
	"pediatrics":        {"neonatologyPerinatalMedicine", "pediatricCardiology", "pediatricEmergencyMedicine"},
	"emergencyMedicine": nil,
	"gynecologyAndObstetrics": {"gynecologicalOncology", "maternalFetalMedicineOrPerinatology",
		"obstetricsAndMaternityCare"},
	"generalSurgery": {"cardiacSurgery", "neurosurgery", "orthopedicSurgery", "plasticSurgery",
		"thoracicSurgery", "vascularSurgery", "hepatopancreatobiliarySurgery"},
	"anesthesia":                        nil,
	"pathology":                         nil,
	"radiology":                         nil,
	"psychiatry":                        {"addictionPsychiatry", "communityAndPublicPsychiatry"},
	"physicalMedicineAndRehabilitation": {"sportsMedicinePMR"},
	"otolaryngology":                    nil,
	"ophthalmology": {"cataractAndAnteriorSegmentSurgery", "glaucomaOphthalmology",
		"retinaAndVitreoretinalOphthalmology", "oculoplasticAndOrbitOphthalmology"},
	"dermatology":                     nil,
	"dentistry":                       {"orthodontics"},
	"criticalCareMedicine":            nil,
	"clinicalPsychology":              nil,
	"diagnosticAndLaboratoryServices": nil,
	"dietetics":                       nil,
}

// Flatten lists top-level tags, plus sub-specialties when level > 0, sorted.
func Flatten(level int) []string {
	var out []string
	for parent, children := range Hierarchy {
		out = append(out, parent)
		if level > 0 {
			out = append(out, children...)
		}
	}
	sort.Strings(out)
	return out
}

// Parent returns the top-level tag a sub-specialty belongs to, or the tag
// itself when it is top-level. Unknown tags return "".
func Parent(tag string) string {
	for parent, children := range Hierarchy {
		if strings.EqualFold(parent, tag) {
			return parent
		}
		for _, c := range children {
			if strings.EqualFold(c, tag) {
				return parent
			}
		}
	}
	return ""
}

// synonyms are everyday phrasings of specialty tags.
var synonyms = map[string][]string{
	"cardiology":              {"cardiac care", "cardiologist", "cardiologists", "heart"},
	"pediatrics":              {"pediatric", "paediatric", "paediatrics", "children", "child health"},
	"ophthalmology":           {"eye", "eye care", "eye surgery", "ophthalmic", "ophthalmologist"},
	"gynecologyAndObstetrics": {"obstetrics", "obstetric", "gynecology", "gynaecology", "maternity", "maternal care"},
	"dentistry":               {"dental", "dentist", "dentists"},
	"emergencyMedicine":       {"emergency", "emergency care", "trauma"},
	"generalSurgery":          {"surgery", "surgical", "surgeon", "surgeons"},
	"radiology":               {"imaging", "radiologist", "x-ray"},
	"psychiatry":              {"mental health", "psychiatric", "psychiatrist"},
	"medicalOncology":         {"cancer", "oncology", "oncologist"},
	"nephrology":              {"kidney", "renal", "dialysis"},
	"anesthesia":              {"anaesthesia", "anesthesiology"},
	"dermatology":             {"skin", "dermatologist"},
	"otolaryngology":          {"ent", "ear nose and throat"},
	"orthopedicSurgery":       {"orthopedic", "orthopaedic", "orthopedics", "bone"},
	"neurosurgery":            {"brain surgery"},
	"familyMedicine":          {"family medicine", "primary care", "general practice"},
	"criticalCareMedicine":    {"icu", "intensive care", "critical care"},
	"pathology":               {"laboratory", "lab"},
}

// synonymIndex is synonyms keyed by lower-cased tag.
var synonymIndex = func() map[string][]string {
	m := make(map[string][]string, len(synonyms))
	for tag, syns := range synonyms {
		m[strings.ToLower(tag)] = syns
	}
	return m
}()

// humanize splits a camelCase tag into lower-case words.
func humanize(tag string) string {
	var b strings.Builder
	for i, r := range tag {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
