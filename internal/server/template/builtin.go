package template

import (
	"time"

	"fleetcmd/internal/types"
)

// BuiltinTemplates returns the system-provided command library. These are
// seeded at startup and immutable through the API.
func BuiltinTemplates() []*types.CommandTemplate {
	now := time.Now()
	mk := func(id, name, category, command string, params ...types.Parameter) *types.CommandTemplate {
		return &types.CommandTemplate{
			ID:        id,
			Name:      name,
			Category:  category,
			Command:   command,
			Params:    params,
			System:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	return []*types.CommandTemplate{
		mk("sys-restart-service", "Restart Service", "services",
			"Restart-Service -Name $ServiceName -Force",
			types.Parameter{Name: "ServiceName", Required: true, Description: "Windows service name"}),
		mk("sys-service-status", "Service Status", "services",
			"Get-Service -Name $ServiceName | Format-List",
			types.Parameter{Name: "ServiceName", Required: true, Description: "Windows service name"}),
		mk("sys-ping-host", "Ping Host", "network",
			"Test-Connection -ComputerName $Target -Count $Count",
			types.Parameter{Name: "Target", Required: true, Description: "Host to ping"},
			types.Parameter{Name: "Count", Default: "4", Description: "Number of echo requests"}),
		mk("sys-free-space", "Free Disk Space", "storage",
			"Get-PSDrive -PSProvider FileSystem"),
		mk("sys-top-processes", "Top Processes", "diagnostics",
			"Get-Process | Sort-Object CPU -Descending | Select-Object -First $Count",
			types.Parameter{Name: "Count", Default: "10", Description: "Number of processes to list"}),
		mk("sys-flush-dns", "Flush DNS Cache", "network",
			"Clear-DnsClientCache"),
	}
}
