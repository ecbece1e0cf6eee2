package service

// PermissionSeed describes one entry of the built-in permission catalog.
type PermissionSeed struct {
	Name        string
	DisplayName string
	Category    string
}

// RoleSeed describes a built-in system role.
type RoleSeed struct {
	Name           string
	Description    string
	Color          string
	Priority       int
	DashboardRoute string
	Permissions    []string
}

// DefaultPermissions is the catalog every deployment starts with.
var DefaultPermissions = []PermissionSeed{
	{"dashboard.read", "View dashboard", "Dashboard"},
	{"users.read", "View users", "User Management"},
	{"users.manage", "Manage users", "User Management"},
	{"roles.manage", "Manage roles and permissions", "User Management"},
	{"menus.read", "View menus", "Menu Planning"},
	{"menus.create", "Create menus", "Menu Planning"},
	{"menus.approve", "Approve menus", "Menu Planning"},
	{"schools.read", "View schools", "Schools"},
	{"schools.manage", "Manage schools", "Schools"},
	{"production.read", "View production", "Production"},
	{"production.create", "Create production plans and batches", "Production"},
	{"production.manage", "Run production batches", "Production"},
	{"quality.read", "View quality records", "Quality Control"},
	{"quality.manage", "Record quality checkpoints and checks", "Quality Control"},
	{"distribution.read", "View distributions", "Distribution"},
	{"distribution.create", "Create distributions", "Distribution"},
	{"distribution.manage", "Advance distributions", "Distribution"},
	{"delivery.read", "View deliveries", "Delivery"},
	{"delivery.create", "Create deliveries", "Delivery"},
	{"delivery.update", "Update delivery progress", "Delivery"},
	{"delivery.override", "Correct completed deliveries", "Delivery"},
	{"drivers.read", "View drivers and vehicles", "Fleet"},
	{"drivers.manage", "Manage drivers, vehicles and driver statistics", "Fleet"},
	{"finance.read", "View finance", "Finance"},
	{"finance.manage", "Manage finance", "Finance"},
	{"inventory.read", "View inventory", "Inventory"},
	{"inventory.manage", "Manage inventory", "Inventory"},
	{"reports.read", "View reports", "Reports"},
	{"audit.read", "View audit trail", "Audit"},
}

func allPermissionNames() []string {
	names := make([]string, 0, len(DefaultPermissions))
	for _, p := range DefaultPermissions {
		names = append(names, p.Name)
	}
	return names
}

// DefaultRoles are the system roles. CHEF runs the kitchen but has no finance authority.
var DefaultRoles = []RoleSeed{
	{
		Name:           "SUPER_ADMIN",
		Description:    "Full system access",
		Color:          "#dc2626",
		Priority:       100,
		DashboardRoute: "/admin",
		Permissions:    allPermissionNames(),
	},
	{
		Name:           "ADMIN",
		Description:    "SPPG administrator",
		Color:          "#ea580c",
		Priority:       90,
		DashboardRoute: "/admin",
		Permissions: []string{
			"dashboard.read", "users.read", "users.manage", "menus.read", "schools.read",
			"schools.manage", "production.read", "quality.read", "distribution.read", "delivery.read",
			"delivery.override", "drivers.read", "drivers.manage", "finance.read", "inventory.read",
			"reports.read", "audit.read",
		},
	},
	{
		Name:           "NUTRITIONIST",
		Description:    "Menu planning and nutrition review",
		Color:          "#16a34a",
		Priority:       60,
		DashboardRoute: "/nutrition",
		Permissions: []string{
			"dashboard.read", "menus.read", "menus.create", "menus.approve", "production.read",
			"quality.read", "reports.read",
		},
	},
	{
		Name:           "DISTRIBUTION_MANAGER",
		Description:    "Plans and supervises distributions",
		Color:          "#0891b2",
		Priority:       55,
		DashboardRoute: "/distribution",
		Permissions: []string{
			"dashboard.read", "schools.read", "production.read", "quality.read", "distribution.read",
			"distribution.create", "distribution.manage", "delivery.read", "delivery.create", "delivery.update",
			"drivers.read", "drivers.manage", "reports.read",
		},
	},
	{
		Name:           "CHEF",
		Description:    "Head of kitchen production",
		Color:          "#ca8a04",
		Priority:       50,
		DashboardRoute: "/kitchen",
		Permissions: []string{
			"dashboard.read", "menus.read", "production.read", "production.create", "production.manage",
			"quality.read", "quality.manage", "inventory.read",
		},
	},
	{
		Name:           "FINANCE_STAFF",
		Description:    "Budget and expense administration",
		Color:          "#7c3aed",
		Priority:       50,
		DashboardRoute: "/finance",
		Permissions: []string{
			"dashboard.read", "finance.read", "finance.manage", "inventory.read", "reports.read",
		},
	},
	{
		Name:           "QUALITY_CONTROL",
		Description:    "Food safety inspection",
		Color:          "#2563eb",
		Priority:       45,
		DashboardRoute: "/quality",
		Permissions: []string{
			"dashboard.read", "production.read", "quality.read", "quality.manage", "inventory.read",
		},
	},
	{
		Name:           "PRODUCTION_STAFF",
		Description:    "Kitchen crew",
		Color:          "#65a30d",
		Priority:       40,
		DashboardRoute: "/kitchen",
		Permissions: []string{
			"dashboard.read", "menus.read", "production.read", "production.manage", "quality.read",
		},
	},
	{
		Name:           "DRIVER",
		Description:    "Delivers meals to schools",
		Color:          "#475569",
		Priority:       20,
		DashboardRoute: "/deliveries",
		Permissions: []string{
			"dashboard.read", "schools.read", "distribution.read", "delivery.read", "delivery.update",
		},
	},
	{
		Name:           "VIEWER",
		Description:    "Read-only access",
		Color:          "#94a3b8",
		Priority:       10,
		DashboardRoute: "/dashboard",
		Permissions: []string{
			"dashboard.read", "production.read", "distribution.read", "reports.read",
		},
	},
}
