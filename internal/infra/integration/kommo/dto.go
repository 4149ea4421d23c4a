package kommo

type CreateLeadInput struct {
	ExternalID   string // ID do lead no CRM, gravado como tag
	CustomerName string
	Company      string
	Phone        string
	Email        string
	Price        int
	StatusID     int
}

type ContactResponse struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type leadsResponse struct {
	Embedded struct {
		Leads []struct {
			ID int `json:"id"`
		} `json:"leads"`
	} `json:"_embedded"`
}

type contactsResponse struct {
	Embedded struct {
		Contacts []ContactResponse `json:"contacts"`
	} `json:"_embedded"`
}
