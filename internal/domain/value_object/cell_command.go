package value_object

import "fmt"

// CellCommand is the command byte of a link-level cell.
type CellCommand byte

const (
	CmdPadding     CellCommand = 0
	CmdRelay       CellCommand = 3
	CmdDestroy     CellCommand = 4
	CmdCreateFast  CellCommand = 5
	CmdCreatedFast CellCommand = 6
	CmdVersions    CellCommand = 7
	CmdNetinfo     CellCommand = 8
	CmdCerts       CellCommand = 129
)

// String returns the string representation of the cell command
func (c CellCommand) String() string {
	switch c {
	case CmdPadding:
		return "PADDING"
	case CmdRelay:
		return "RELAY"
	case CmdDestroy:
		return "DESTROY"
	case CmdCreateFast:
		return "CREATE_FAST"
	case CmdCreatedFast:
		return "CREATED_FAST"
	case CmdVersions:
		return "VERSIONS"
	case CmdNetinfo:
		return "NETINFO"
	case CmdCerts:
		return "CERTS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(c))
	}
}

// IsValid checks if the command is a valid cell command
func (c CellCommand) IsValid() bool {
	switch c {
	case CmdPadding, CmdRelay, CmdDestroy, CmdCreateFast, CmdCreatedFast, CmdVersions, CmdNetinfo, CmdCerts:
		return true
	default:
		return false
	}
}

// IsChannelLevel reports whether the command travels on circuit ID 0.
func (c CellCommand) IsChannelLevel() bool {
	switch c {
	case CmdPadding, CmdVersions, CmdNetinfo, CmdCerts:
		return true
	default:
		return false
	}
}

// RelayCommand is the command byte inside a decrypted RELAY cell.
type RelayCommand byte

const (
	RelayBegin     RelayCommand = 1
	RelayData      RelayCommand = 2
	RelayEnd       RelayCommand = 3
	RelayConnected RelayCommand = 4
	RelaySendme    RelayCommand = 5
)

func (c RelayCommand) String() string {
	switch c {
	case RelayBegin:
		return "BEGIN"
	case RelayData:
		return "DATA"
	case RelayEnd:
		return "END"
	case RelayConnected:
		return "CONNECTED"
	case RelaySendme:
		return "SENDME"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(c))
	}
}

// EndReason is carried by RELAY_END.
type EndReason byte

const (
	EndReasonMisc           EndReason = 1
	EndReasonResolveFailed  EndReason = 2
	EndReasonConnectRefused EndReason = 3
	EndReasonExitPolicy     EndReason = 4
	EndReasonDestroy        EndReason = 5
	EndReasonDone           EndReason = 6
	EndReasonTimeout        EndReason = 7
	EndReasonNoRoute        EndReason = 8
)

func (r EndReason) String() string {
	switch r {
	case EndReasonMisc:
		return "misc"
	case EndReasonResolveFailed:
		return "resolve failed"
	case EndReasonConnectRefused:
		return "connection refused"
	case EndReasonExitPolicy:
		return "exit policy"
	case EndReasonDestroy:
		return "circuit destroyed"
	case EndReasonDone:
		return "done"
	case EndReasonTimeout:
		return "timeout"
	case EndReasonNoRoute:
		return "no route"
	default:
		return fmt.Sprintf("reason(%d)", byte(r))
	}
}

// DestroyReason is carried by DESTROY.
type DestroyReason byte

const (
	DestroyNone      DestroyReason = 0
	DestroyProtocol  DestroyReason = 1
	DestroyInternal  DestroyReason = 2
	DestroyRequested DestroyReason = 3
	DestroyResource  DestroyReason = 5
	DestroyFinished  DestroyReason = 9
)

func (r DestroyReason) String() string {
	switch r {
	case DestroyNone:
		return "none"
	case DestroyProtocol:
		return "protocol violation"
	case DestroyInternal:
		return "internal error"
	case DestroyRequested:
		return "requested"
	case DestroyResource:
		return "resource limit"
	case DestroyFinished:
		return "finished"
	default:
		return fmt.Sprintf("reason(%d)", byte(r))
	}
}
