package tools

// Builtin returns the registry of controller tools. Template IDs match the
// job templates provisioned on the controller for each operation.
func Builtin() *Registry {
	r, err := NewRegistry(builtinSchemas())
	if err != nil {
		// The builtin catalog is static; a bad entry is a programming error.
		panic(err)
	}
	return r
}

func builtinSchemas() []Schema {
	return []Schema{
		{
			Name:        "create_organization",
			Description: "Create an organization on the controller.",
			Kind:        KindWrite,
			TemplateID:  35,
			Args: map[string]ArgSpec{
				"org_name":                {Type: TypeString, Required: true, Help: "organization name"},
				"org_description":         {Type: TypeString, Default: ""},
				"org_galaxy_credentials":  {Type: TypeString, Default: ""},
				"org_default_environment": {Type: TypeString, Default: ""},
			},
		},
		{
			Name:        "create_credential",
			Description: "Create a credential owned by an organization.",
			Kind:        KindWrite,
			TemplateID:  36,
			Args: map[string]ArgSpec{
				"credential_name":         {Type: TypeString, Required: true},
				"credential_organization": {Type: TypeString, Required: true},
				"credential_type":         {Type: TypeString, Required: true, Help: "e.g. Machine, Source Control"},
				"credential_description":  {Type: TypeString, Default: ""},
			},
		},
		{
			Name:        "list_organizations",
			Description: "List all organizations.",
			Kind:        KindRead,
			TemplateID:  37,
		},
		{
			Name:        "list_users",
			Description: "List all users.",
			Kind:        KindRead,
			TemplateID:  38,
		},
		{
			Name:        "create_user",
			Description: "Create a user account.",
			Kind:        KindWrite,
			TemplateID:  39,
			Args: map[string]ArgSpec{
				"user_username":          {Type: TypeString, Required: true},
				"user_password":          {Type: TypeString, Required: true},
				"user_email":             {Type: TypeString, Default: ""},
				"user_first_name":        {Type: TypeString, Default: ""},
				"user_last_name":         {Type: TypeString, Default: ""},
				"user_organization":      {Type: TypeString, Default: ""},
				"user_is_superuser":      {Type: TypeBool, Default: false},
				"user_is_system_auditor": {Type: TypeBool, Default: false},
			},
		},
		{
			Name:        "create_inventory",
			Description: "Create an inventory in an organization.",
			Kind:        KindWrite,
			TemplateID:  40,
			Args: map[string]ArgSpec{
				"inventory_name":         {Type: TypeString, Required: true},
				"inventory_organization": {Type: TypeString, Required: true},
				"inventory_description":  {Type: TypeString, Default: ""},
			},
		},
		{
			Name:        "list_inventories",
			Description: "List all inventories.",
			Kind:        KindRead,
			TemplateID:  41,
		},
		{
			Name:        "list_credentials",
			Description: "List all credentials.",
			Kind:        KindRead,
			TemplateID:  42,
		},
		{
			Name:        "create_project",
			Description: "Create a project pointing at a source-control repository.",
			Kind:        KindWrite,
			TemplateID:  43,
			Args: map[string]ArgSpec{
				"project_name":                 {Type: TypeString, Required: true},
				"project_organization":         {Type: TypeString, Required: true},
				"project_scm_type":             {Type: TypeString, Required: true, Help: "e.g. git"},
				"project_description":          {Type: TypeString, Default: ""},
				"project_scm_url":              {Type: TypeString, Default: ""},
				"project_scm_branch":           {Type: TypeString, Default: ""},
				"project_scm_credential":       {Type: TypeString, Default: ""},
				"project_scm_update_on_launch": {Type: TypeBool, Default: true},
				"project_scm_delete_on_update": {Type: TypeBool, Default: false},
				"project_scm_clean":            {Type: TypeBool, Default: false},
			},
		},
		{
			Name:        "list_projects",
			Description: "List all projects.",
			Kind:        KindRead,
			TemplateID:  46,
		},
		{
			Name:        "create_job_template",
			Description: "Create a job template binding a project playbook to an inventory.",
			Kind:        KindWrite,
			TemplateID:  48,
			Args: map[string]ArgSpec{
				"job_template_name":      {Type: TypeString, Required: true},
				"job_template_job_type":  {Type: TypeString, Required: true, Help: "run or check"},
				"job_template_inventory": {Type: TypeString, Required: true},
				"job_template_project":   {Type: TypeString, Required: true},
				"job_template_playbook":  {Type: TypeString, Required: true},
				"job_template_description":              {Type: TypeString, Default: ""},
				"job_template_credentials":              {Type: TypeString, Default: ""},
				"job_template_verbosity":                {Type: TypeInt, Default: 0},
				"job_template_limit":                    {Type: TypeString, Default: ""},
				"job_template_extra_vars":               {Type: TypeString, Default: ""},
				"job_template_tags":                     {Type: TypeString, Default: ""},
				"job_template_skip_tags":                {Type: TypeString, Default: ""},
				"job_template_ask_variables_on_launch":  {Type: TypeBool, Default: false},
				"job_template_ask_limit_on_launch":      {Type: TypeBool, Default: false},
				"job_template_ask_tags_on_launch":       {Type: TypeBool, Default: false},
				"job_template_ask_skip_tags_on_launch":  {Type: TypeBool, Default: false},
				"job_template_ask_credential_on_launch": {Type: TypeBool, Default: false},
				"job_template_ask_inventory_on_launch":  {Type: TypeBool, Default: false},
			},
		},
		{
			Name:        "list_job_templates",
			Description: "List all job templates.",
			Kind:        KindRead,
			TemplateID:  51,
		},
	}
}
