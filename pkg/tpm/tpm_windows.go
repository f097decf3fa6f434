//go:build windows

package tpm

import (
	"fmt"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/scjalliance/comshim"
)

type device struct {
	handle  *ole.IDispatch
	wmiIntf *ole.IDispatch
	wmiSvc  *ole.IDispatch
}

func (d *device) close() {
	if d.handle != nil {
		d.handle.Release()
	}

	if d.wmiIntf != nil {
		d.wmiIntf.Release()
	}

	if d.wmiSvc != nil {
		d.wmiSvc.Release()
	}

	comshim.Done()
}

// connect binds to the Win32_Tpm singleton instance.
func connect() (device, error) {
	comshim.Add(1)
	d := device{}

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		comshim.Done()
		return d, fmt.Errorf("createObject: %w", err)
	}
	defer unknown.Release()

	d.wmiIntf, err = unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		comshim.Done()
		return d, fmt.Errorf("queryInterface: %w", err)
	}
	serviceRaw, err := oleutil.CallMethod(d.wmiIntf, "ConnectServer", nil, `\\.\ROOT\CIMV2\Security\MicrosoftTpm`)
	if err != nil {
		d.close()
		return d, fmt.Errorf("connectServer: %w", err)
	}
	d.wmiSvc = serviceRaw.ToIDispatch()

	raw, err := oleutil.CallMethod(d.wmiSvc, "ExecQuery", "SELECT * FROM Win32_Tpm")
	if err != nil {
		d.close()
		return d, fmt.Errorf("execQuery: %w", err)
	}
	result := raw.ToIDispatch()
	defer result.Release()

	countVar, err := oleutil.GetProperty(result, "Count")
	if err != nil {
		d.close()
		return d, fmt.Errorf("fetching TPM instance count: %w", err)
	}
	if count, ok := countVar.Value().(int32); !ok || count == 0 {
		d.close()
		return d, ErrNoTPM
	}

	itemRaw, err := oleutil.CallMethod(result, "ItemIndex", 0)
	if err != nil {
		d.close()
		return d, fmt.Errorf("fetching TPM instance: %w", err)
	}
	d.handle = itemRaw.ToIDispatch()

	return d, nil
}

// Query returns whether a TPM is present and ready for use as a key
// protector. A machine with no TPM reports Present=false with a nil error.
func Query() (Status, error) {
	dev, err := connect()
	if err != nil {
		if err == ErrNoTPM {
			return Status{}, nil
		}
		return Status{}, fmt.Errorf("connecting to the TPM: %w", err)
	}
	defer dev.close()

	var ready bool
	resultRaw, err := oleutil.CallMethod(dev.handle, "IsReady", &ready)
	if err != nil {
		return Status{Present: true}, fmt.Errorf("IsReady: %w", err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return Status{Present: true}, fmt.Errorf("IsReady: return code %d", val)
	}

	return Status{Present: true, Ready: ready}, nil
}

// Provision asks the module to perform whatever enablement steps it can
// without a reboot (the Win32_Tpm Provision method). A module that requires
// physical presence or a reboot reports an information code; that surfaces as
// an error here and the caller decides whether to continue without the TPM.
// https://learn.microsoft.com/en-us/windows/win32/secprov/provision-win32-tpm
func Provision() error {
	dev, err := connect()
	if err != nil {
		return fmt.Errorf("connecting to the TPM: %w", err)
	}
	defer dev.close()

	var information int32
	resultRaw, err := oleutil.CallMethod(dev.handle, "Provision", false, false, &information)
	if err != nil {
		return fmt.Errorf("Provision: %w", err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return fmt.Errorf("Provision: return code %d", val)
	}
	if information != 0 {
		return fmt.Errorf("Provision: additional steps required, information code %d", information)
	}

	return nil
}
