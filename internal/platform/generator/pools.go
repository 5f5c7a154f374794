package generator

var lastNames = []string{
	"Anderson", "Bennett", "Carter", "Dalton", "Ellison", "Fletcher",
	"Garrison", "Hayward", "Ingram", "Jensen", "Kendall", "Lambert",
	"Marlow", "Newell", "Osborne", "Prescott", "Quinlan", "Rowland",
	"Sheridan", "Thornton", "Underwood", "Vaughn", "Whitaker", "Yardley",
}

var maleNames = []string{
	"Adam", "Brian", "Caleb", "Daniel", "Edward", "Felix", "George",
	"Henry", "Isaac", "Jacob", "Kevin", "Lucas", "Martin", "Nathan",
	"Oliver", "Peter", "Robert", "Samuel", "Thomas", "Victor", "Walter",
}

var femaleNames = []string{
	"Alice", "Beatrice", "Clara", "Diana", "Eleanor", "Fiona", "Grace",
	"Hannah", "Irene", "Julia", "Karen", "Laura", "Margaret", "Nora",
	"Olivia", "Paula", "Rachel", "Sarah", "Teresa", "Vera", "Wendy",
}

var neutralNames = []string{
	"Alex", "Bailey", "Casey", "Dana", "Elliot", "Jamie", "Jordan",
	"Kelly", "Morgan", "Parker", "Quinn", "Riley", "Sawyer", "Taylor",
}

var streets = []string{
	"Oak", "Maple", "Cedar", "Elm", "Pine", "Willow", "Birch", "Chestnut",
	"Hillcrest", "Lakeview", "Meadow", "Ridge", "Sunset", "Valley",
}

var streetSuffixes = []string{"St", "Ave", "Rd", "Ln", "Dr", "Ct", "Way"}

var cities = []string{
	"Ashford", "Brookfield", "Clearwater", "Dunmore", "Fairview",
	"Glenwood", "Harborview", "Kingsport", "Lakewood", "Millbrook",
	"Northfield", "Oakridge", "Riverton", "Stonebridge", "Westfield",
}
