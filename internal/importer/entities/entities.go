// Package entities registers the built-in entity types with the importer
// registry. Import this package for its side effect.
package entities

import "github.com/JonMunkholm/bizimport/internal/importer"

const (
	Prospect    importer.EntityType = "prospect"
	Contact     importer.EntityType = "contact"
	Opportunity importer.EntityType = "opportunity"
	Employee    importer.EntityType = "employee"
)

func init() {
	registerProspect()
	registerContact()
	registerOpportunity()
	registerEmployee()
}

func registerProspect() {
	importer.Register(importer.EntityDefinition{
		Type:  Prospect,
		Label: "Prospects",
		Fields: []importer.FieldSpec{
			{Name: "company", Label: "Company", Required: true},
			{Name: "contactName", Label: "Contact Name", Required: true},
			{Name: "email", Label: "Email", Required: true},
			{Name: "phone", Label: "Phone"},
			{Name: "source", Label: "Source"},
			{Name: "status", Label: "Status"},
			{Name: "notes", Label: "Notes"},
		},
		Examples: [2][]string{
			{"Acme Corp", "Jane Doe", "jane@acme.com", "+33 1 23 45 67 89", "Website", "New", "Met at the Lyon trade show"},
			{"Globex", "John Smith", "john.smith@globex.com", "+33 6 12 34 56 78", "Referral", "Contacted", "Call back in March"},
		},
	})
}

func registerContact() {
	importer.Register(importer.EntityDefinition{
		Type:  Contact,
		Label: "Contacts",
		Fields: []importer.FieldSpec{
			{Name: "firstName", Label: "First Name", Required: true},
			{Name: "lastName", Label: "Last Name", Required: true},
			{Name: "email", Label: "Email", Required: true},
			{Name: "phone", Label: "Phone"},
			{Name: "company", Label: "Company"},
			{Name: "position", Label: "Position"},
		},
		Examples: [2][]string{
			{"Marie", "Curie", "marie.curie@example.com", "+33 1 98 76 54 32", "Institut Radium", "Director"},
			{"Paul", "Martin", "paul.martin@example.com", "+33 7 11 22 33 44", "Martin SARL", "Buyer"},
		},
	})
}

func registerOpportunity() {
	importer.Register(importer.EntityDefinition{
		Type:  Opportunity,
		Label: "Opportunities",
		Fields: []importer.FieldSpec{
			{Name: "title", Label: "Title", Required: true},
			{Name: "company", Label: "Company", Required: true},
			{Name: "amount", Label: "Amount", Required: true},
			{Name: "stage", Label: "Stage"},
			{Name: "probability", Label: "Probability"},
			{Name: "closeDate", Label: "Close Date"},
			{Name: "owner", Label: "Owner"},
		},
		Examples: [2][]string{
			{"CRM rollout", "Acme Corp", "15000", "Proposal", "60", "2025-06-30", "Jane Doe"},
			{"Support renewal", "Globex", "4200", "Negotiation", "80", "2025-04-15", "John Smith"},
		},
	})
}

func registerEmployee() {
	importer.Register(importer.EntityDefinition{
		Type:  Employee,
		Label: "Employees",
		Fields: []importer.FieldSpec{
			{Name: "firstName", Label: "First Name", Required: true},
			{Name: "lastName", Label: "Last Name", Required: true},
			{Name: "email", Label: "Email", Required: true},
			{Name: "position", Label: "Position"},
			{Name: "department", Label: "Department"},
			{Name: "hireDate", Label: "Hire Date"},
			{Name: "salary", Label: "Salary"},
			{Name: "phone", Label: "Phone"},
		},
		Examples: [2][]string{
			{"Alice", "Bernard", "alice.bernard@example.com", "Developer", "Engineering", "2023-09-01", "52000", "+33 6 01 02 03 04"},
			{"Karim", "Haddad", "karim.haddad@example.com", "Accountant", "Finance", "2021-02-15", "47000", "+33 6 05 06 07 08"},
		},
	})
}
