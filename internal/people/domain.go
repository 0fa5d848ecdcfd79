package people

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blasbase/blasbase/internal/shared"
)

// Person is an identity record.
type Person struct {
	ID                  int64         `json:"id"`
	FirstName           string        `json:"first_name"`
	Nickname            string        `json:"nickname"`
	LastName            string        `json:"last_name"`
	Born                *shared.Date  `json:"born"`
	Deceased            *shared.Date  `json:"deceased"`
	PersonalIDNumSuffix string        `json:"personal_id_num_suffix"`
	LiuID               string        `json:"liu_id"`
	About               string        `json:"about"`
	SpecialDiets        []SpecialDiet `json:"special_diets"`
	SpecialDietsExtra   string        `json:"special_diets_extra"`
	Email               string        `json:"email"`
	UserID              *int64        `json:"user_id"`
	Addresses           []Address     `json:"addresses"`
	PhoneNumbers        []PhoneNumber `json:"phone_numbers"`
	LastUpdated         time.Time     `json:"last_updated"`
}

// Address is a postal address of a person.
type Address struct {
	ID       int64  `json:"id"`
	Address  string `json:"address"`
	PostCode string `json:"post_code"`
	City     string `json:"city"`
	Country  string `json:"country"`
}

// PhoneNumber is a phone number of a person.
type PhoneNumber struct {
	ID      int64  `json:"id"`
	Number  string `json:"number"`
	Country string `json:"country"`
}

// SpecialDiet is a catalogue entry such as "vegetarian".
type SpecialDiet struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FullName renders `First "Nick" Last`, or `First Last` without a nickname.
func (p Person) FullName() string {
	if p.Nickname != "" {
		return p.FirstName + ` "` + p.Nickname + `" ` + p.LastName
	}
	return p.FirstName + " " + p.LastName
}

// ShortName is the nickname, or the first name and last-name initial.
func (p Person) ShortName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	r, _ := utf8.DecodeRuneInString(p.LastName)
	if r == utf8.RuneError {
		return p.FirstName
	}
	return p.FirstName + " " + string(r)
}

// Input returns the editable fields of p.
func (p Person) Input() PersonInput {
	in := PersonInput{
		FirstName:           p.FirstName,
		Nickname:            p.Nickname,
		LastName:            p.LastName,
		Born:                p.Born,
		Deceased:            p.Deceased,
		PersonalIDNumSuffix: p.PersonalIDNumSuffix,
		LiuID:               p.LiuID,
		About:               p.About,
		SpecialDietsExtra:   p.SpecialDietsExtra,
		Email:               p.Email,
		SpecialDietIDs:      make([]int64, 0, len(p.SpecialDiets)),
		Addresses:           make([]AddressInput, 0, len(p.Addresses)),
		PhoneNumbers:        make([]PhoneInput, 0, len(p.PhoneNumbers)),
	}
	for _, sd := range p.SpecialDiets {
		in.SpecialDietIDs = append(in.SpecialDietIDs, sd.ID)
	}
	for _, a := range p.Addresses {
		in.Addresses = append(in.Addresses, AddressInput{Address: a.Address, PostCode: a.PostCode, City: a.City, Country: a.Country})
	}
	for _, ph := range p.PhoneNumbers {
		in.PhoneNumbers = append(in.PhoneNumbers, PhoneInput{Number: ph.Number, Country: ph.Country})
	}
	return in
}

// PersonInput carries the writable fields of a person.
type PersonInput struct {
	FirstName           string         `json:"first_name" validate:"required,max=256"`
	Nickname            string         `json:"nickname" validate:"max=256"`
	LastName            string         `json:"last_name" validate:"required,max=256"`
	Born                *shared.Date   `json:"born"`
	Deceased            *shared.Date   `json:"deceased"`
	PersonalIDNumSuffix string         `json:"personal_id_num_suffix" validate:"max=4"`
	LiuID               string         `json:"liu_id" validate:"max=8"`
	About               string         `json:"about"`
	SpecialDietIDs      []int64        `json:"special_diet_ids"`
	SpecialDietsExtra   string         `json:"special_diets_extra" validate:"max=256"`
	Email               string         `json:"email" validate:"omitempty,email,max=256"`
	Addresses           []AddressInput `json:"addresses" validate:"dive"`
	PhoneNumbers        []PhoneInput   `json:"phone_numbers" validate:"dive"`
}

// AddressInput carries a postal address.
type AddressInput struct {
	Address  string `json:"address" validate:"max=256"`
	PostCode string `json:"post_code" validate:"max=256"`
	City     string `json:"city" validate:"max=256"`
	Country  string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// PhoneInput carries a phone number.
type PhoneInput struct {
	Number  string `json:"number" validate:"required,max=64"`
	Country string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// Normalize trims text fields and upper-cases country codes.
func (in *PersonInput) Normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Nickname = strings.TrimSpace(in.Nickname)
	in.LastName = strings.TrimSpace(in.LastName)
	in.PersonalIDNumSuffix = strings.TrimSpace(in.PersonalIDNumSuffix)
	in.LiuID = strings.ToLower(strings.TrimSpace(in.LiuID))
	in.SpecialDietsExtra = strings.TrimSpace(in.SpecialDietsExtra)
	in.Email = strings.TrimSpace(in.Email)
	for i := range in.Addresses {
		in.Addresses[i].Country = strings.ToUpper(strings.TrimSpace(in.Addresses[i].Country))
	}
	for i := range in.PhoneNumbers {
		in.PhoneNumbers[i].Number = strings.TrimSpace(in.PhoneNumbers[i].Number)
		in.PhoneNumbers[i].Country = strings.ToUpper(strings.TrimSpace(in.PhoneNumbers[i].Country))
	}
}

// checkDates enforces that neither date lies after today and death is not before birth.
func (in PersonInput) checkDates(today shared.Date, verr *shared.ValidationError) {
	if in.Born != nil && in.Born.After(today) {
		verr.Add("born", "must not be in the future")
	}
	if in.Deceased != nil && in.Deceased.After(today) {
		verr.Add("deceased", "must not be in the future")
	}
	if in.Born != nil && in.Deceased != nil && in.Deceased.Before(*in.Born) {
		verr.Add("deceased", "decease date must be after birth date")
	}
}

// ListParams narrows a person listing.
type ListParams struct {
	Query   string
	Page    int
	PerPage int
}
